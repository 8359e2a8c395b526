package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrStoreUnavailable is returned when the backing context/state store
	// cannot be reached. The turn is aborted and no reply is produced; the
	// transport layer owns the retry.
	ErrStoreUnavailable = errors.New("context store unavailable")

	// ErrSuppressed signals that no automated reply must be sent because the
	// buyer's conversations are under human handover. It is a routing signal,
	// not a failure.
	ErrSuppressed = errors.New("reply suppressed: human handover active")

	// ErrConversationNotFound is returned by read paths for keys that never
	// received a message.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrItemNotFound is returned when no item snapshot has been saved for a
	// conversation.
	ErrItemNotFound = errors.New("item snapshot not found")
)

// ClassificationError wraps an LLM fallback failure during intent
// classification. It is always recovered locally by defaulting the intent and
// never surfaces to the buyer.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("intent classification fallback failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// InvariantViolationError reports a computed offer escaping the
// [floor, original] band. This is an internal bug: strict mode fails the
// transition, production mode clamps and logs.
type InvariantViolationError struct {
	Conversation ConversationKey
	Offer        decimal.Decimal
	Floor        decimal.Decimal
	Original     decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("negotiation invariant violated for %s: offer %s outside [%s, %s]",
		e.Conversation, e.Offer, e.Floor, e.Original)
}
