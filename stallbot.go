// Package stallbot assembles the conversational sales assistant: a context
// store, intent classifier, stepped bargain engine, expert router and
// human-handover controller wired behind one Bot facade. Collaborators are
// injected, so transports, stores and model providers stay swappable.
package stallbot

import (
	"context"
	"fmt"

	"stallbot/bargain"
	"stallbot/config"
	"stallbot/core"
	"stallbot/handover"
	"stallbot/intent"
	"stallbot/logging"
	"stallbot/model"
	"stallbot/prompt"
	"stallbot/report"
	"stallbot/router"
	"stallbot/search"
)

// Options configure optional Bot collaborators.
type Options struct {
	// ModeStore persists handover toggles across restarts.
	ModeStore core.ModeStore
	// Reporter backs the admin projections. When nil and the context store
	// implements core.Reporter, that store is used.
	Reporter core.Reporter
	// SearchIndex grounds the tech expert. Nil disables retrieval.
	SearchIndex search.Index
	// StrictBargain fails turns on invariant violations instead of clamping.
	StrictBargain bool
	Logger        logging.Logger
}

// Bot is the assembled assistant.
type Bot struct {
	cfg        config.Config
	store      core.ContextStore
	engine     *bargain.Engine
	controller *handover.Controller
	router     *router.Router
	dispatcher *router.Dispatcher
	reporting  *report.Service
	index      search.Index
	prompts    *prompt.Registry
	logger     logging.Logger
}

// New wires a Bot from a validated config, a context store and a model
// completer.
func New(cfg config.Config, contextStore core.ContextStore, completer model.Completer, optFns ...func(o *Options)) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	prompts, err := buildPrompts(cfg)
	if err != nil {
		return nil, err
	}

	specs := make([]intent.Spec, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		specs = append(specs, intent.Spec{Intent: r.Intent, Keywords: r.Keywords, Patterns: r.Patterns})
	}
	rules, err := intent.CompileRules(specs)
	if err != nil {
		return nil, fmt.Errorf("compile classification rules: %w", err)
	}
	classifyPrompt, err := prompts.Render(prompt.NameClassify, nil)
	if err != nil {
		return nil, err
	}
	classifier := intent.NewClassifier(rules, completer, func(o *intent.Options) {
		o.SystemPrompt = classifyPrompt
		o.Logger = opts.Logger
	})

	engine := bargain.NewEngine(func(o *bargain.Options) {
		o.FloorPercentage = cfg.FloorPercentage
		o.StepCount = cfg.StepCount
		o.Scale = cfg.CurrencyScale
		o.Strict = opts.StrictBargain
		o.Logger = opts.Logger
	})

	controller := handover.NewController(cfg.ToggleKeyword, func(o *handover.Options) {
		o.Store = opts.ModeStore
		o.Logger = opts.Logger
	})

	rt := router.New(contextStore, classifier, engine, controller, completer, prompts,
		func(o *router.Options) {
			o.HistoryBudget = core.HistoryBudget{MaxTurns: cfg.ContextMaxTurns, MaxRunes: cfg.ContextMaxRunes}
			o.LLMTimeout = cfg.LLMTimeout
			o.FallbackReply = cfg.FallbackReply
			o.SearchIndex = opts.SearchIndex
			o.SafetyFilter = router.NewSafetyFilter(cfg.BlockedPhrases, cfg.SafetyReply)
			o.Logger = opts.Logger
		})

	dispatcher := router.NewDispatcher(rt, func(o *router.DispatcherOptions) {
		o.Workers = cfg.Workers
		o.MaxConcurrent = cfg.MaxConcurrent
		o.Logger = opts.Logger
	})

	reporter := opts.Reporter
	if reporter == nil {
		if r, ok := contextStore.(core.Reporter); ok {
			reporter = r
		}
	}
	var reporting *report.Service
	if reporter != nil {
		reporting = report.NewService(reporter, engine, func(o *report.Options) {
			o.ActiveWindow = cfg.ActiveWindow
			o.Logger = opts.Logger
		})
	}

	return &Bot{
		cfg:        cfg,
		store:      contextStore,
		engine:     engine,
		controller: controller,
		router:     rt,
		dispatcher: dispatcher,
		reporting:  reporting,
		index:      opts.SearchIndex,
		prompts:    prompts,
		logger:     opts.Logger,
	}, nil
}

func buildPrompts(cfg config.Config) (*prompt.Registry, error) {
	if cfg.PromptDir != "" {
		return prompt.LoadRegistry(cfg.PromptDir)
	}
	return prompt.NewRegistry()
}

// Start restores persisted handover modes and launches the dispatcher pool.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.controller.Restore(ctx); err != nil {
		return fmt.Errorf("restore handover modes: %w", err)
	}
	b.dispatcher.Start(ctx)
	return nil
}

// Deliver processes one inbound buyer message synchronously and returns the
// reply. core.ErrSuppressed means nothing must be sent.
func (b *Bot) Deliver(ctx context.Context, in router.Inbound) (router.Reply, error) {
	return b.router.Handle(ctx, in)
}

// Submit enqueues an inbound message on the worker pool; fn receives the
// outcome. Start must have been called.
func (b *Bot) Submit(ctx context.Context, in router.Inbound, fn func(router.Reply, error)) error {
	return b.dispatcher.Submit(ctx, in, fn)
}

// RegisterItem stores the item snapshot and indexes its description and any
// extra snippets for technical grounding.
func (b *Bot) RegisterItem(ctx context.Context, item core.Item, snippets ...string) error {
	if err := b.store.SaveItem(ctx, item); err != nil {
		return err
	}
	if b.index == nil {
		return nil
	}
	if item.Description != "" {
		if err := b.index.Store(ctx, item.ID, item.Description, map[string]any{"source": "listing"}); err != nil {
			return err
		}
	}
	for _, sn := range snippets {
		if err := b.index.Store(ctx, item.ID, sn, map[string]any{"source": "merchant"}); err != nil {
			return err
		}
	}
	return nil
}

// HandoverMode returns the buyer's current automation mode.
func (b *Bot) HandoverMode(buyerID string) core.HandoverMode {
	return b.controller.CurrentMode(buyerID)
}

// Negotiation returns the live bargain state for a conversation, if any.
func (b *Bot) Negotiation(key core.ConversationKey) (bargain.State, bool) {
	return b.engine.State(key)
}

// Reporting returns the admin projection service, nil when no reporter is
// available.
func (b *Bot) Reporting() *report.Service {
	return b.reporting
}

// Shutdown drains the dispatcher.
func (b *Bot) Shutdown(ctx context.Context) error {
	return b.dispatcher.Shutdown(ctx)
}
