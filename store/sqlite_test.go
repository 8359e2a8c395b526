package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stallbot/core"
)

func newTestSQLite(t *testing.T, optFns ...func(o *SQLiteOptions)) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), optFns...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_AppendAndHistoryRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := core.ConversationKey{BuyerID: "b1", ItemID: "i1"}

	for i := 0; i < 4; i++ {
		msg := core.Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      core.RoleBuyer,
			Content:   fmt.Sprintf("内容 %d", i),
			Timestamp: time.Now(),
		}
		if i%2 == 1 {
			msg.Role = core.RoleAssistant
			msg.Intent = core.IntentPrice
		}
		if err := s.Append(ctx, key, msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := s.History(ctx, key, core.HistoryBudget{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(history))
	}
	for i, m := range history {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d: got id %s", i, m.ID)
		}
	}
	if history[1].Intent != core.IntentPrice {
		t.Errorf("intent not persisted: %+v", history[1])
	}
	if history[1].Role != core.RoleAssistant {
		t.Errorf("role not persisted: %+v", history[1])
	}
}

func TestSQLite_HistoryTrimsToBudget(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := core.ConversationKey{BuyerID: "b1", ItemID: "i1"}

	for i := 0; i < 6; i++ {
		_ = s.Append(ctx, key, core.Message{ID: fmt.Sprintf("m%d", i), Role: core.RoleBuyer, Content: "x"})
	}
	history, err := s.History(ctx, key, core.HistoryBudget{MaxTurns: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != "m4" {
		t.Errorf("unexpected suffix: %+v", history)
	}
}

func TestSQLite_RetentionDropsOldestRows(t *testing.T) {
	s := newTestSQLite(t, func(o *SQLiteOptions) { o.MaxHistory = 3 })
	ctx := context.Background()
	key := core.ConversationKey{BuyerID: "b1", ItemID: "i1"}

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, key, core.Message{ID: fmt.Sprintf("m%d", i), Role: core.RoleBuyer, Content: "x"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	history, err := s.FullHistory(ctx, key)
	if err != nil {
		t.Fatalf("full history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected retention of 3, got %d", len(history))
	}
	if history[0].ID != "m2" {
		t.Errorf("oldest retained should be m2, got %s", history[0].ID)
	}
}

func TestSQLite_ItemRoundTripPreservesPrice(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	item := core.Item{
		ID:          "i1",
		Title:       "机械键盘",
		Price:       decimal.RequireFromString("99.90"),
		Description: "红轴 95新",
		FetchedAt:   time.Now(),
	}
	if err := s.SaveItem(ctx, item); err != nil {
		t.Fatalf("save item: %v", err)
	}

	got, err := s.ItemSnapshot(ctx, core.ConversationKey{BuyerID: "b1", ItemID: "i1"})
	if err != nil {
		t.Fatalf("item snapshot: %v", err)
	}
	if !got.Price.Equal(item.Price) {
		t.Errorf("price mangled: %s != %s", got.Price, item.Price)
	}
	if got.Description != item.Description {
		t.Errorf("description mismatch: %q", got.Description)
	}

	if _, err := s.ItemSnapshot(ctx, core.ConversationKey{BuyerID: "b1", ItemID: "missing"}); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestSQLite_CountersStatusAndSummaries(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := core.ConversationKey{BuyerID: "b1", ItemID: "i1"}

	if err := s.IncrementBargainCount(ctx, key); !errors.Is(err, core.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	_ = s.Append(ctx, key, core.Message{ID: "m0", Role: core.RoleBuyer, Content: "hi"})
	if err := s.IncrementBargainCount(ctx, key); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.IncrementBargainCount(ctx, key); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.SetStatus(ctx, key, core.ConversationCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	summaries, err := s.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	got := summaries[0]
	if got.Key != key || got.BargainCount != 2 || got.Status != core.ConversationCompleted || got.MessageCount != 1 {
		t.Errorf("summary mismatch: %+v", got)
	}

	stats, err := s.Stats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalConversations != 1 || stats.CompletedConversations != 1 || stats.TotalMessages != 1 {
		t.Errorf("stats mismatch: %+v", stats)
	}
}

func TestSQLite_HandoverModesRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.SaveMode(ctx, "b1", core.ModeHuman, time.Now()); err != nil {
		t.Fatalf("save mode: %v", err)
	}
	// Overwrite flips the same row.
	if err := s.SaveMode(ctx, "b1", core.ModeAI, time.Now()); err != nil {
		t.Fatalf("save mode: %v", err)
	}
	if err := s.SaveMode(ctx, "b2", core.ModeHuman, time.Now()); err != nil {
		t.Fatalf("save mode: %v", err)
	}

	modes, err := s.LoadModes(ctx)
	if err != nil {
		t.Fatalf("load modes: %v", err)
	}
	if modes["b1"] != core.ModeAI || modes["b2"] != core.ModeHuman {
		t.Errorf("modes mismatch: %+v", modes)
	}
}

func TestSQLite_FullHistoryUnknownConversation(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.FullHistory(context.Background(), core.ConversationKey{BuyerID: "nobody", ItemID: "i1"})
	if !errors.Is(err, core.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}
