// Package router dispatches classified buyer messages to their expert and
// owns per-conversation serialization: at most one in-flight Handle call per
// conversation key, so two interleaved turns can never corrupt the
// negotiation state. The router coordinates but owns no conversation state
// itself; stores and the bargain engine do.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stallbot/bargain"
	"stallbot/core"
	"stallbot/handover"
	"stallbot/intent"
	"stallbot/internal/util"
	"stallbot/logging"
	"stallbot/model"
	"stallbot/prompt"
	"stallbot/search"
)

// Inbound is one received buyer message as delivered by the transport
// collaborator.
type Inbound struct {
	// MessageID is the transport's dedup key. When empty it is derived from
	// the conversation key and timestamp.
	MessageID string
	BuyerID   string
	ItemID    string
	Text      string
	Timestamp time.Time
}

// Key returns the conversation key for the message.
func (in Inbound) Key() core.ConversationKey {
	return core.ConversationKey{BuyerID: in.BuyerID, ItemID: in.ItemID}
}

// Reply is the produced automated response.
type Reply struct {
	MessageID string      `json:"message_id"`
	Text      string      `json:"text"`
	Intent    core.Intent `json:"intent"`
}

type cached struct {
	reply      Reply
	suppressed bool
}

// Options configure a Router.
type Options struct {
	// HistoryBudget bounds the context handed to the classifier and experts.
	HistoryBudget core.HistoryBudget
	// LLMTimeout bounds every individual model call.
	LLMTimeout time.Duration
	// FallbackReply is sent when an expert fails; buyers never see errors.
	FallbackReply string
	// SearchIndex optionally grounds the tech expert.
	SearchIndex search.Index
	// SafetyFilter scrubs outgoing replies. Nil disables scrubbing.
	SafetyFilter *SafetyFilter
	Logger       logging.Logger
}

// Router is the expert dispatch pipeline.
type Router struct {
	store      core.ContextStore
	classifier *intent.Classifier
	engine     *bargain.Engine
	controller *handover.Controller
	experts    map[core.Intent]expert
	safety     *SafetyFilter

	historyBudget core.HistoryBudget
	llmTimeout    time.Duration
	fallbackReply string
	logger        logging.Logger

	lanesMu sync.Mutex
	lanes   map[core.ConversationKey]*sync.Mutex

	dedupMu sync.Mutex
	dedup   map[string]cached
}

// New wires a Router from its collaborators.
func New(
	store core.ContextStore,
	classifier *intent.Classifier,
	engine *bargain.Engine,
	controller *handover.Controller,
	completer model.Completer,
	prompts *prompt.Registry,
	optFns ...func(o *Options),
) *Router {
	opts := Options{
		HistoryBudget: core.HistoryBudget{MaxTurns: 10},
		LLMTimeout:    30 * time.Second,
		FallbackReply: "抱歉，我这边暂时没处理好，稍后回复您。",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	deflt := &defaultExpert{completer: completer, prompts: prompts}
	r := &Router{
		store:      store,
		classifier: classifier,
		engine:     engine,
		controller: controller,
		experts: map[core.Intent]expert{
			core.IntentPrice:   &priceExpert{engine: engine, completer: completer, prompts: prompts, store: store, deflt: deflt},
			core.IntentTech:    &techExpert{completer: completer, prompts: prompts, index: opts.SearchIndex},
			core.IntentDefault: deflt,
		},
		safety:        opts.SafetyFilter,
		historyBudget: opts.HistoryBudget,
		llmTimeout:    opts.LLMTimeout,
		fallbackReply: opts.FallbackReply,
		logger:        opts.Logger,
		lanes:         make(map[core.ConversationKey]*sync.Mutex),
		dedup:         make(map[string]cached),
	}
	return r
}

func (r *Router) lane(key core.ConversationKey) *sync.Mutex {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()
	mu, ok := r.lanes[key]
	if !ok {
		mu = &sync.Mutex{}
		r.lanes[key] = mu
	}
	return mu
}

// Handle processes one inbound message and returns the reply to send.
// core.ErrSuppressed signals that nothing must be sent (handover active or
// toggle message); it is not a failure. Calls for the same conversation key
// serialize; different conversations proceed in parallel. Re-delivery of an
// already-processed message id returns the recorded outcome.
func (r *Router) Handle(ctx context.Context, in Inbound) (Reply, error) {
	key := in.Key()
	if !key.Valid() {
		return Reply{}, fmt.Errorf("invalid conversation key %q", key)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	if in.MessageID == "" {
		in.MessageID = fmt.Sprintf("%s@%d", key, in.Timestamp.UnixNano())
	}

	mu := r.lane(key)
	mu.Lock()
	defer mu.Unlock()

	if prev, ok := r.lookupDedup(in.MessageID); ok {
		if prev.suppressed {
			return Reply{}, core.ErrSuppressed
		}
		return prev.reply, nil
	}

	reply, err := r.handleLocked(ctx, key, in)
	switch {
	case err == nil:
		r.recordDedup(in.MessageID, cached{reply: reply})
	case errors.Is(err, core.ErrSuppressed):
		r.recordDedup(in.MessageID, cached{suppressed: true})
	}
	// Store failures are not recorded: the transport retries them.
	return reply, err
}

func (r *Router) handleLocked(ctx context.Context, key core.ConversationKey, in Inbound) (Reply, error) {
	log := r.logger

	inbound := core.Message{
		ID:        in.MessageID,
		Role:      core.RoleBuyer,
		Content:   in.Text,
		Timestamp: in.Timestamp,
	}
	if err := r.store.Append(ctx, key, inbound); err != nil {
		return Reply{}, err
	}

	// Gate before any model call: handover turns and toggle messages must
	// not produce automated replies.
	if _, toggled := r.controller.ToggleIfKeyword(ctx, in.BuyerID, in.Text); toggled {
		return Reply{}, core.ErrSuppressed
	}
	if r.controller.CurrentMode(in.BuyerID) == core.ModeHuman {
		log.Debug("handover active, suppressing reply buyer_id=%s", in.BuyerID)
		return Reply{}, core.ErrSuppressed
	}

	history, err := r.store.History(ctx, key, r.historyBudget)
	if err != nil {
		return Reply{}, err
	}
	// Classification context excludes the message being classified.
	if n := len(history); n > 0 && history[n-1].ID == in.MessageID {
		history = history[:n-1]
	}

	detected, cerr := r.classify(ctx, in.Text, history)
	if cerr != nil {
		log.Warn("classification degraded to default: %v", cerr)
	}

	t := &turn{key: key, messageID: in.MessageID, text: in.Text, history: history}
	if item, err := r.store.ItemSnapshot(ctx, key); err == nil {
		t.item = item
		t.hasItem = true
	} else if !errors.Is(err, core.ErrItemNotFound) {
		return Reply{}, err
	}

	text, err := r.respond(ctx, detected, t)
	if err != nil {
		var violation *core.InvariantViolationError
		if errors.As(err, &violation) {
			return Reply{}, err
		}
		log.Error("expert %s failed, sending fallback: %v", detected, err)
		text = r.fallbackReply
	}
	if r.safety != nil {
		text = r.safety.Apply(text)
	}

	replyMsg := core.Message{
		ID:        util.NewMessageID(),
		Role:      core.RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
		Intent:    detected,
	}
	if err := r.store.Append(ctx, key, replyMsg); err != nil {
		return Reply{}, err
	}

	log.Info("handled message conversation=%s intent=%s", key, detected)
	return Reply{MessageID: replyMsg.ID, Text: text, Intent: detected}, nil
}

func (r *Router) classify(ctx context.Context, text string, history []core.Message) (core.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()
	return r.classifier.Classify(ctx, text, history)
}

func (r *Router) respond(ctx context.Context, detected core.Intent, t *turn) (string, error) {
	exp, ok := r.experts[detected]
	if !ok {
		exp = r.experts[core.IntentDefault]
	}
	ctx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()
	return exp.respond(ctx, t)
}

func (r *Router) lookupDedup(messageID string) (cached, bool) {
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	c, ok := r.dedup[messageID]
	return c, ok
}

func (r *Router) recordDedup(messageID string, c cached) {
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	r.dedup[messageID] = c
}
