package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"stallbot/core"
	"stallbot/logging"
)

// ServerOptions configure the admin HTTP server.
type ServerOptions struct {
	// Addr is the listen address, for example ":8081".
	Addr string
	// AllowedOrigin restricts CORS. Empty allows any origin, matching a
	// dashboard served from another port during development.
	AllowedOrigin string
	Logger        logging.Logger
}

// Server exposes the Service over HTTP for the merchant dashboard.
type Server struct {
	service *Service
	http    *http.Server
	logger  logging.Logger
}

// NewServer builds the admin server around the service.
func NewServer(service *Service, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		Addr:   ":8081",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{service: service, logger: opts.Logger}

	origin := opts.AllowedOrigin
	if origin == "" {
		origin = "*"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/conversations", s.handleConversations)
	r.Get("/conversations/{buyerID}/{itemID}/messages", s.handleMessages)

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("admin server listening addr=%s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	views, err := s.service.Conversations(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views, "count": len(views)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	key := core.ConversationKey{
		BuyerID: chi.URLParam(r, "buyerID"),
		ItemID:  chi.URLParam(r, "itemID"),
	}
	if !key.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation key"})
		return
	}
	messages, err := s.service.History(r.Context(), key)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("admin request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
