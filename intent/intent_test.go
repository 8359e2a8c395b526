package intent

import (
	"context"
	"errors"
	"testing"

	"stallbot/core"
	"stallbot/model"
)

func defaultSpecs() []Spec {
	return []Spec{
		{Intent: "tech", Keywords: []string{"参数", "规格", "型号", "连接", "对比"}, Patterns: []string{`和.+比`}},
		{Intent: "price", Keywords: []string{"便宜", "价", "砍价", "少点"}, Patterns: []string{`\d+元`, `能少\d+`}},
	}
}

func newTestClassifier(t *testing.T, completer model.Completer) *Classifier {
	t.Helper()
	rules, err := CompileRules(defaultSpecs())
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	return NewClassifier(rules, completer)
}

func TestClassifier_RulePathSkipsModel(t *testing.T) {
	mock := model.NewMockCompleter()
	c := newTestClassifier(t, mock)
	ctx := context.Background()

	tests := []struct {
		message string
		want    core.Intent
	}{
		{"能便宜点吗", core.IntentPrice},
		{"这个的参数是什么", core.IntentTech},
		{"100元行不行", core.IntentPrice},
		{"和小米的比怎么样", core.IntentTech},
	}
	for _, tt := range tests {
		got, err := c.Classify(ctx, tt.message, nil)
		if err != nil {
			t.Fatalf("classify %q: %v", tt.message, err)
		}
		if got != tt.want {
			t.Errorf("classify %q = %s, want %s", tt.message, got, tt.want)
		}
	}
	if mock.Calls() != 0 {
		t.Errorf("rule-path classification made %d model calls", mock.Calls())
	}
}

func TestClassifier_TechRulesWinOverPriceRules(t *testing.T) {
	c := newTestClassifier(t, model.NewMockCompleter())

	// Mentions both a price keyword and a tech keyword; the tech rule is
	// ordered first.
	got, err := c.Classify(context.Background(), "这个型号能便宜点吗", nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != core.IntentTech {
		t.Errorf("expected tech to win, got %s", got)
	}
}

func TestClassifier_PunctuationDoesNotDefeatKeywords(t *testing.T) {
	c := newTestClassifier(t, model.NewMockCompleter())

	got, err := c.Classify(context.Background(), "便~宜！点？", nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != core.IntentPrice {
		t.Errorf("expected price, got %s", got)
	}
}

func TestClassifier_FallbackUsesModel(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.AddResponse("老板在吗", "default")
	c := newTestClassifier(t, mock)

	got, err := c.Classify(context.Background(), "老板在吗", nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != core.IntentDefault {
		t.Errorf("expected default, got %s", got)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected exactly one model call, got %d", mock.Calls())
	}
}

func TestClassifier_FallbackFailureDegradesToDefault(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.FailWith(errors.New("provider down"))
	c := newTestClassifier(t, mock)

	got, err := c.Classify(context.Background(), "这个怎么样", nil)
	if got != core.IntentDefault {
		t.Errorf("expected default on failure, got %s", got)
	}
	var cerr *core.ClassificationError
	if !errors.As(err, &cerr) {
		t.Errorf("expected a classification error, got %v", err)
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want core.Intent
	}{
		{"price", core.IntentPrice},
		{" Tech ", core.IntentTech},
		{`"default"`, core.IntentDefault},
		{"the intent is price.", core.IntentPrice},
		{"price or tech", core.IntentDefault},
		{"shopping", core.IntentDefault},
		{"", core.IntentDefault},
	}
	for _, tt := range tests {
		if got := ParseLabel(tt.raw); got != tt.want {
			t.Errorf("ParseLabel(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestCompileRules_RejectsBadInput(t *testing.T) {
	if _, err := CompileRules([]Spec{{Intent: ""}}); err == nil {
		t.Error("expected error for empty intent")
	}
	if _, err := CompileRules([]Spec{{Intent: "price", Patterns: []string{"("}}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
