package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stallbot/core"
)

// Memory is a volatile ContextStore implementation keeping conversations in a
// process-local map. It is safe for concurrent access and best suited for
// tests. Returned slices are defensive copies.
type Memory struct {
	mu            sync.RWMutex
	conversations map[core.ConversationKey]*core.Conversation
	items         map[string]core.Item
}

// NewMemory constructs an empty in-memory context store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[core.ConversationKey]*core.Conversation),
		items:         make(map[string]core.Item),
	}
}

// Append adds a message, creating the conversation lazily.
func (s *Memory) Append(_ context.Context, key core.ConversationKey, msg core.Message) error {
	s.mu.Lock()
	conv, ok := s.conversations[key]
	if !ok {
		conv = core.NewConversation(key)
		s.conversations[key] = conv
	}
	s.mu.Unlock()
	conv.AppendMessage(msg)
	return nil
}

// History returns the budget-trimmed suffix of the conversation log.
func (s *Memory) History(_ context.Context, key core.ConversationKey, budget core.HistoryBudget) ([]core.Message, error) {
	s.mu.RLock()
	conv, ok := s.conversations[key]
	s.mu.RUnlock()
	if !ok {
		return []core.Message{}, nil
	}
	return budget.Trim(conv.Messages()), nil
}

// SaveItem records an item snapshot.
func (s *Memory) SaveItem(_ context.Context, item core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// ItemSnapshot returns the item a conversation is about.
func (s *Memory) ItemSnapshot(_ context.Context, key core.ConversationKey) (core.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key.ItemID]
	if !ok {
		return core.Item{}, core.ErrItemNotFound
	}
	return item, nil
}

// IncrementBargainCount bumps the conversation's price-turn counter.
func (s *Memory) IncrementBargainCount(_ context.Context, key core.ConversationKey) error {
	s.mu.RLock()
	conv, ok := s.conversations[key]
	s.mu.RUnlock()
	if !ok {
		return core.ErrConversationNotFound
	}
	conv.IncrementBargainCount()
	return nil
}

// SetStatus updates the conversation lifecycle marker.
func (s *Memory) SetStatus(_ context.Context, key core.ConversationKey, status core.ConversationStatus) error {
	s.mu.RLock()
	conv, ok := s.conversations[key]
	s.mu.RUnlock()
	if !ok {
		return core.ErrConversationNotFound
	}
	conv.SetStatus(status)
	return nil
}

// ListConversations returns summaries newest-updated first.
func (s *Memory) ListConversations(_ context.Context, limit, offset int) ([]core.ConversationSummary, error) {
	s.mu.RLock()
	summaries := make([]core.ConversationSummary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		summaries = append(summaries, conv.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Updated.After(summaries[j].Updated) })
	if offset >= len(summaries) {
		return []core.ConversationSummary{}, nil
	}
	summaries = summaries[offset:]
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// FullHistory returns the complete untrimmed log.
func (s *Memory) FullHistory(_ context.Context, key core.ConversationKey) ([]core.Message, error) {
	s.mu.RLock()
	conv, ok := s.conversations[key]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrConversationNotFound
	}
	return conv.Messages(), nil
}

// Stats computes the aggregate counters.
func (s *Memory) Stats(_ context.Context, activeWindow time.Duration) (core.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats core.Stats
	cutoff := time.Now().Add(-activeWindow)
	for _, conv := range s.conversations {
		snap := conv.Snapshot()
		stats.TotalConversations++
		stats.TotalMessages += snap.MessageCount
		if snap.Status == core.ConversationCompleted {
			stats.CompletedConversations++
		}
		if snap.Updated.After(cutoff) {
			stats.ActiveConversations++
		}
	}
	return stats, nil
}

// Interface compliance (compile-time assertions).
var (
	_ core.ContextStore = (*Memory)(nil)
	_ core.Reporter     = (*Memory)(nil)
)
