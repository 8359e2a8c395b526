package core

import (
	"fmt"
	"testing"
)

func msgs(contents ...string) []Message {
	out := make([]Message, 0, len(contents))
	for i, c := range contents {
		out = append(out, Message{ID: fmt.Sprintf("m%d", i), Role: RoleBuyer, Content: c})
	}
	return out
}

func TestHistoryBudget_Unbounded(t *testing.T) {
	in := msgs("a", "b", "c")
	out := HistoryBudget{}.Trim(in)
	if len(out) != 3 {
		t.Fatalf("expected all messages, got %d", len(out))
	}
	out[0].Content = "mutated"
	if in[0].Content != "a" {
		t.Error("Trim must copy, not alias, the input")
	}
}

func TestHistoryBudget_MaxTurnsKeepsNewestSuffix(t *testing.T) {
	in := msgs("a", "b", "c", "d", "e")
	out := HistoryBudget{MaxTurns: 2}.Trim(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "d" || out[1].Content != "e" {
		t.Errorf("expected newest suffix [d e], got [%s %s]", out[0].Content, out[1].Content)
	}
}

func TestHistoryBudget_MaxRunesNeverSplitsMessages(t *testing.T) {
	in := msgs("12345", "1234567890", "123")
	// 13 runes fits the last two messages exactly; the first must be dropped
	// whole even though part of it would fit.
	out := HistoryBudget{MaxRunes: 14}.Trim(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "1234567890" {
		t.Errorf("expected oldest surviving message to be intact, got %q", out[0].Content)
	}
}

func TestHistoryBudget_BothDimensions(t *testing.T) {
	in := msgs("aaaa", "bbbb", "cccc", "dddd")
	out := HistoryBudget{MaxTurns: 3, MaxRunes: 8}.Trim(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "cccc" || out[1].Content != "dddd" {
		t.Errorf("unexpected suffix: %+v", out)
	}
}

func TestConversationKey(t *testing.T) {
	k := ConversationKey{BuyerID: "b1", ItemID: "i1"}
	if k.String() != "b1/i1" {
		t.Errorf("unexpected key string %q", k.String())
	}
	if !k.Valid() {
		t.Error("expected valid key")
	}
	if (ConversationKey{BuyerID: "b1"}).Valid() {
		t.Error("missing item id must be invalid")
	}
	if (ConversationKey{}).Valid() {
		t.Error("zero key must be invalid")
	}
}

func TestIntentKnown(t *testing.T) {
	for _, i := range []Intent{IntentPrice, IntentTech, IntentDefault} {
		if !i.Known() {
			t.Errorf("%s should be known", i)
		}
	}
	if Intent("chitchat").Known() {
		t.Error("out-of-set label should not be known")
	}
}
