// Package report serves read-only operational projections: aggregate
// counters, conversation listings and full transcripts. It combines the
// store's Reporter view with the bargain engine's in-process negotiation
// states and exposes them over a small admin HTTP surface.
package report

import (
	"context"
	"time"

	"stallbot/bargain"
	"stallbot/core"
	"stallbot/logging"
)

// Service computes the admin projections.
type Service struct {
	reporter     core.Reporter
	engine       *bargain.Engine
	activeWindow time.Duration
	logger       logging.Logger
}

// Options configure a Service.
type Options struct {
	// ActiveWindow bounds how recently updated a conversation must be to
	// count as active in Stats.
	ActiveWindow time.Duration
	Logger       logging.Logger
}

// NewService builds a Service over the reporter and engine.
func NewService(reporter core.Reporter, engine *bargain.Engine, optFns ...func(o *Options)) *Service {
	opts := Options{
		ActiveWindow: 24 * time.Hour,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{
		reporter:     reporter,
		engine:       engine,
		activeWindow: opts.ActiveWindow,
		logger:       opts.Logger,
	}
}

// Stats returns the aggregate counters. Successful negotiations come from
// the engine, which is the authority on accepted bargains.
func (s *Service) Stats(ctx context.Context) (core.Stats, error) {
	stats, err := s.reporter.Stats(ctx, s.activeWindow)
	if err != nil {
		return core.Stats{}, err
	}
	if s.engine != nil {
		stats.SuccessfulNegotiations = s.engine.SuccessfulNegotiations()
	}
	return stats, nil
}

// ConversationView is one listing row enriched with negotiation state.
type ConversationView struct {
	core.ConversationSummary
	Negotiation *NegotiationView `json:"negotiation,omitempty"`
}

// NegotiationView is the engine state rendered for the admin surface.
type NegotiationView struct {
	Original   string         `json:"original_price"`
	Floor      string         `json:"floor_price"`
	LastOffer  string         `json:"last_offer"`
	StepsUsed  int            `json:"steps_used"`
	StepCount  int            `json:"step_count"`
	Status     bargain.Status `json:"status"`
	FinalPrice string         `json:"final_price,omitempty"`
}

func negotiationView(st bargain.State) *NegotiationView {
	v := &NegotiationView{
		Original:  st.Original.String(),
		Floor:     st.Floor.String(),
		LastOffer: st.LastOffer.String(),
		StepsUsed: st.StepsUsed,
		StepCount: st.StepCount,
		Status:    st.Status,
	}
	if st.Status == bargain.StatusAccepted {
		v.FinalPrice = st.FinalPrice.String()
	}
	return v
}

// Conversations lists summaries newest first, joined with any live
// negotiation state the engine holds for them.
func (s *Service) Conversations(ctx context.Context, limit, offset int) ([]ConversationView, error) {
	summaries, err := s.reporter.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	byKey := make(map[core.ConversationKey]bargain.State)
	if s.engine != nil {
		for _, st := range s.engine.Snapshot() {
			byKey[st.Key] = st
		}
	}
	views := make([]ConversationView, 0, len(summaries))
	for _, sum := range summaries {
		v := ConversationView{ConversationSummary: sum}
		if st, ok := byKey[sum.Key]; ok {
			v.Negotiation = negotiationView(st)
		}
		views = append(views, v)
	}
	return views, nil
}

// History returns the complete transcript for one conversation.
func (s *Service) History(ctx context.Context, key core.ConversationKey) ([]core.Message, error) {
	return s.reporter.FullHistory(ctx, key)
}
