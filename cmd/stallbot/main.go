// Command stallbot runs the assistant with the SQLite context store and the
// admin reporting server. The buyer-facing transport is a collaborator; this
// binary exposes the inbound contract on a minimal HTTP endpoint so any
// platform bridge can deliver messages.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"stallbot"
	"stallbot/config"
	"stallbot/core"
	"stallbot/internal/util"
	"stallbot/logging"
	"stallbot/model"
	"stallbot/model/anthropic"
	"stallbot/model/openai"
	"stallbot/report"
	"stallbot/router"
	"stallbot/search"
	"stallbot/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stallbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewSlogLogger(parseLevel(cfg.LogLevel), cfg.LogFormat, false)

	db, err := store.NewSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer db.Close()

	completer, err := buildCompleter(cfg)
	if err != nil {
		return err
	}

	index := search.NewInMemoryIndex()
	bot, err := stallbot.New(cfg, db, completer, func(o *stallbot.Options) {
		o.ModeStore = db
		o.Reporter = db
		o.SearchIndex = index
		o.Logger = logger.WithComponent("bot")
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return err
	}

	admin := report.NewServer(bot.Reporting(), func(o *report.ServerOptions) {
		o.Addr = cfg.AdminAddr
		o.AllowedOrigin = cfg.AllowedOrigin
		o.Logger = logger.WithComponent("admin")
	})

	inboundSrv := &http.Server{
		Addr:         getEnvDefault("INBOUND_ADDR", ":8080"),
		Handler:      inboundHandler(bot, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * cfg.LLMTimeout,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- admin.Start() }()
	go func() {
		logger.Info("inbound server listening addr=%s", inboundSrv.Addr)
		if err := inboundSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = inboundSrv.Shutdown(shutdownCtx)
	_ = admin.Shutdown(shutdownCtx)
	return bot.Shutdown(shutdownCtx)
}

// inboundRequest is the transport bridge payload.
type inboundRequest struct {
	MessageID string `json:"message_id"`
	BuyerID   string `json:"buyer_id"`
	ItemID    string `json:"item_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix seconds
}

func inboundHandler(bot *stallbot.Bot, logger logging.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var req inboundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.MessageID == "" {
			// Bridges that do not carry platform message ids get a random one;
			// such deliveries have no retry identity to deduplicate anyway.
			req.MessageID = util.NewID()
		}
		in := router.Inbound{
			MessageID: req.MessageID,
			BuyerID:   req.BuyerID,
			ItemID:    req.ItemID,
			Text:      req.Text,
		}
		if req.Timestamp > 0 {
			in.Timestamp = time.Unix(req.Timestamp, 0)
		}
		reply, err := bot.Deliver(r.Context(), in)
		switch {
		case errors.Is(err, core.ErrSuppressed):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, core.ErrStoreUnavailable):
			http.Error(w, "store unavailable, retry", http.StatusServiceUnavailable)
		case err != nil:
			logger.Error("deliver failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(reply)
		}
	})
	mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		var item core.Item
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if item.FetchedAt.IsZero() {
			item.FetchedAt = time.Now()
		}
		if err := bot.RegisterItem(r.Context(), item); err != nil {
			logger.Error("register item failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func buildCompleter(cfg config.Config) (model.Completer, error) {
	switch strings.ToLower(cfg.ModelProvider) {
	case "openai", "":
		return openai.NewCompleter(func(o *openai.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		}), nil
	case "anthropic":
		return anthropic.NewCompleter(func(o *anthropic.Options) {
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}

func parseLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LogLevelDebug
	case "warn", "warning":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
