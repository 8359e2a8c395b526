package core

import (
	"sync"
	"time"
)

// ConversationStatus is the coarse lifecycle marker kept for reporting.
// Conversations are never deleted by the engine; archival is a collaborator
// concern.
type ConversationStatus string

const (
	// ConversationActive is the initial and usual status.
	ConversationActive ConversationStatus = "active"
	// ConversationCompleted marks conversations whose negotiation reached a
	// terminal state.
	ConversationCompleted ConversationStatus = "completed"
)

// Conversation tracks the ordered message log and aggregate counters for one
// (buyer, item) pair. It is safe for concurrent access.
//
// Contract:
//   - AppendMessage updates the Updated timestamp
//   - Messages returns a defensive copy to avoid external mutation
//   - Clone performs deep copies for safe divergence.
type Conversation struct {
	Key          ConversationKey    `json:"key"`
	MessageLog   []Message          `json:"messages"`
	BargainCount int                `json:"bargain_count"`
	Status       ConversationStatus `json:"status"`
	Created      time.Time          `json:"created"`
	Updated      time.Time          `json:"updated"`
	mu           sync.RWMutex
}

// NewConversation creates an active conversation for the given key.
func NewConversation(key ConversationKey) *Conversation {
	now := time.Now()
	return &Conversation{Key: key, MessageLog: []Message{}, Status: ConversationActive, Created: now, Updated: now}
}

// AppendMessage appends a message to the log updating the Updated timestamp.
func (c *Conversation) AppendMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MessageLog = append(c.MessageLog, msg)
	c.Updated = time.Now()
}

// Messages returns a defensive copy of the full ordered log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]Message, len(c.MessageLog))
	copy(msgs, c.MessageLog)
	return msgs
}

// IncrementBargainCount bumps the price-turn counter kept for reporting.
func (c *Conversation) IncrementBargainCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BargainCount++
	c.Updated = time.Now()
}

// SetStatus updates the lifecycle marker.
func (c *Conversation) SetStatus(s ConversationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = s
	c.Updated = time.Now()
}

// Snapshot returns the counters without copying the log.
func (c *Conversation) Snapshot() ConversationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConversationSummary{
		Key:          c.Key,
		MessageCount: len(c.MessageLog),
		BargainCount: c.BargainCount,
		Status:       c.Status,
		Created:      c.Created,
		Updated:      c.Updated,
	}
}

// Clone returns a deep copy of the conversation safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		Key:          c.Key,
		MessageLog:   make([]Message, len(c.MessageLog)),
		BargainCount: c.BargainCount,
		Status:       c.Status,
		Created:      c.Created,
		Updated:      c.Updated,
	}
	copy(clone.MessageLog, c.MessageLog)
	return clone
}

// ConversationSummary is the aggregate view exposed to reporting.
type ConversationSummary struct {
	Key          ConversationKey    `json:"key"`
	MessageCount int                `json:"message_count"`
	BargainCount int                `json:"bargain_count"`
	Status       ConversationStatus `json:"status"`
	Created      time.Time          `json:"created"`
	Updated      time.Time          `json:"updated"`
}
