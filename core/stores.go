package core

import (
	"context"
	"time"
)

// ContextStore persists conversations and their evolving message history.
// Append must durably persist before it returns (write-before-ack); a failed
// append surfaces ErrStoreUnavailable so the router can abort the turn
// without fabricating a reply.
type ContextStore interface {
	// Append adds a message to the conversation's log, creating the
	// conversation on first use.
	Append(ctx context.Context, key ConversationKey, msg Message) error

	// History returns a suffix of the ordered log trimmed to the budget.
	// Oldest messages are dropped first; messages are never truncated.
	History(ctx context.Context, key ConversationKey, budget HistoryBudget) ([]Message, error)

	// SaveItem records the immutable item snapshot for its listings.
	SaveItem(ctx context.Context, item Item) error

	// ItemSnapshot returns the item the conversation is about.
	ItemSnapshot(ctx context.Context, key ConversationKey) (Item, error)

	// IncrementBargainCount bumps the per-conversation price-turn counter.
	IncrementBargainCount(ctx context.Context, key ConversationKey) error

	// SetStatus updates the conversation lifecycle marker.
	SetStatus(ctx context.Context, key ConversationKey, status ConversationStatus) error
}

// Stats is the per-process aggregate view served to the admin collaborator.
type Stats struct {
	TotalConversations     int `json:"total_conversations"`
	ActiveConversations    int `json:"active_conversations"`
	CompletedConversations int `json:"completed_conversations"`
	SuccessfulNegotiations int `json:"successful_negotiations"`
	TotalMessages          int `json:"total_messages"`
}

// Reporter exposes read-only projections of the context store. All methods
// must be computable without mutating core state.
type Reporter interface {
	// ListConversations returns summaries ordered by last update, newest
	// first.
	ListConversations(ctx context.Context, limit, offset int) ([]ConversationSummary, error)

	// FullHistory returns the complete untrimmed log for one conversation.
	FullHistory(ctx context.Context, key ConversationKey) ([]Message, error)

	// Stats computes the aggregate counters. activeWindow bounds how recent a
	// conversation's last update must be to count as active.
	Stats(ctx context.Context, activeWindow time.Duration) (Stats, error)
}

// HandoverMode is the per-buyer automation toggle.
type HandoverMode string

const (
	// ModeAI means automated replies are produced.
	ModeAI HandoverMode = "ai"
	// ModeHuman means a human operator owns all of the buyer's conversations.
	ModeHuman HandoverMode = "human"
)

// ModeStore optionally persists handover state so toggles survive restarts.
// The in-memory controller works without one.
type ModeStore interface {
	SaveMode(ctx context.Context, buyerID string, mode HandoverMode, toggledAt time.Time) error
	LoadModes(ctx context.Context) (map[string]HandoverMode, error)
}
