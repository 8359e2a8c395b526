package core

import (
	"fmt"
	"time"
)

// Role identifies the author of a message within a conversation.
type Role string

const (
	// RoleBuyer marks messages received from the marketplace buyer.
	RoleBuyer Role = "buyer"
	// RoleAssistant marks automated replies produced by the engine.
	RoleAssistant Role = "assistant"
	// RoleOperator marks replies typed by a human operator during handover.
	RoleOperator Role = "operator"
	// RoleSystem marks synthetic bookkeeping entries (bargain counters etc.).
	RoleSystem Role = "system"
)

// Intent is the classified purpose of a buyer message. The set is extensible;
// these three are the ones the router binds experts to.
type Intent string

const (
	// IntentPrice routes to the bargain engine.
	IntentPrice Intent = "price"
	// IntentTech routes to the technical support expert.
	IntentTech Intent = "tech"
	// IntentDefault routes to the generic responder. Also the safe fallback
	// when classification fails or yields an unknown label.
	IntentDefault Intent = "default"
)

// Known reports whether the intent is one of the closed routing set.
func (i Intent) Known() bool {
	switch i {
	case IntentPrice, IntentTech, IntentDefault:
		return true
	}
	return false
}

// ConversationKey identifies a conversation by its (buyer, item) pair.
// The zero value is invalid.
type ConversationKey struct {
	BuyerID string `json:"buyer_id"`
	ItemID  string `json:"item_id"`
}

// String renders the key in "buyer/item" form, used for lane partitioning and
// log correlation.
func (k ConversationKey) String() string {
	return fmt.Sprintf("%s/%s", k.BuyerID, k.ItemID)
}

// Valid reports whether both components are present.
func (k ConversationKey) Valid() bool {
	return k.BuyerID != "" && k.ItemID != ""
}

// Message is an immutable record within a conversation's append-only log.
// Ordering is insertion order; timestamps are informational and never used to
// reorder.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    Intent    `json:"intent,omitempty"`
}

// HistoryBudget bounds the suffix of a conversation log returned by History.
// Zero values mean unbounded for that dimension. Trimming drops oldest
// messages first and never splits a message.
type HistoryBudget struct {
	// MaxTurns limits the number of messages returned.
	MaxTurns int
	// MaxRunes limits the combined content length of the returned messages.
	MaxRunes int
}

// Unbounded reports whether the budget imposes no limit.
func (b HistoryBudget) Unbounded() bool { return b.MaxTurns <= 0 && b.MaxRunes <= 0 }

// Trim applies the budget to an ordered message slice, keeping the newest
// suffix that fits. The input is not mutated.
func (b HistoryBudget) Trim(msgs []Message) []Message {
	if b.Unbounded() || len(msgs) == 0 {
		out := make([]Message, len(msgs))
		copy(out, msgs)
		return out
	}
	start := 0
	if b.MaxTurns > 0 && len(msgs) > b.MaxTurns {
		start = len(msgs) - b.MaxTurns
	}
	if b.MaxRunes > 0 {
		runes := 0
		cut := len(msgs)
		for i := len(msgs) - 1; i >= start; i-- {
			runes += len([]rune(msgs[i].Content))
			if runes > b.MaxRunes {
				break
			}
			cut = i
		}
		if cut > start {
			start = cut
		}
	}
	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}
