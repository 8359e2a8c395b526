// Package intent classifies buyer messages into the closed routing set
// (price, tech, default). Classification is two-tier: a deterministic ordered
// rule table is consulted first so common phrasings never cost a network
// call, and the language-model collaborator is the fallback for paraphrases.
// A fallback failure or an out-of-set label always degrades to the default
// intent; a turn is never failed by classification.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"stallbot/core"
	"stallbot/logging"
	"stallbot/model"
)

// Spec declares one rule before compilation. Order matters: the first
// matching rule wins, so technical rules placed before price rules take
// priority exactly like the original table.
type Spec struct {
	Intent   string
	Keywords []string
	Patterns []string
}

// Rule is a compiled classification rule.
type Rule struct {
	Intent   core.Intent
	Keywords []string
	Patterns []*regexp.Regexp
}

// CompileRules validates and compiles an ordered rule table.
func CompileRules(specs []Spec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		if s.Intent == "" {
			return nil, fmt.Errorf("rule %d: empty intent", i)
		}
		r := Rule{Intent: core.Intent(s.Intent), Keywords: s.Keywords}
		for _, p := range s.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): bad pattern %q: %w", i, s.Intent, p, err)
			}
			r.Patterns = append(r.Patterns, re)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// normalizer drops everything except word characters and CJK ideographs so
// punctuation cannot defeat keyword matches.
var normalizer = regexp.MustCompile(`[^\w\p{Han}]+`)

// Options configure a Classifier.
type Options struct {
	// SystemPrompt frames the LLM fallback call. The model is expected to
	// answer with a single label.
	SystemPrompt string
	Logger       logging.Logger
}

// Classifier maps a message plus recent context to an intent.
type Classifier struct {
	rules        []Rule
	completer    model.Completer
	systemPrompt string
	logger       logging.Logger
}

// DefaultSystemPrompt is used when no classification template is configured.
const DefaultSystemPrompt = "You are an intent classifier for a secondhand marketplace assistant. " +
	"Given the dialogue, answer with exactly one label: price, tech, or default."

// NewClassifier builds a classifier over an ordered rule table with an LLM
// fallback.
func NewClassifier(rules []Rule, completer model.Completer, optFns ...func(o *Options)) *Classifier {
	opts := Options{SystemPrompt: DefaultSystemPrompt, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{rules: rules, completer: completer, systemPrompt: opts.SystemPrompt, logger: opts.Logger}
}

// Classify returns the intent for a message. The error, when non-nil, is a
// *core.ClassificationError describing a fallback failure that was already
// recovered by defaulting the intent; callers log it and move on.
func (c *Classifier) Classify(ctx context.Context, message string, history []core.Message) (core.Intent, error) {
	if intent, ok := c.matchRules(message); ok {
		return intent, nil
	}
	if c.completer == nil {
		return core.IntentDefault, nil
	}

	label, err := c.completer.Complete(ctx, model.Request{
		System:   c.systemPrompt,
		Messages: buildDialogue(history, message),
	})
	if err != nil {
		return core.IntentDefault, &core.ClassificationError{Err: err}
	}

	intent := ParseLabel(label)
	if !intent.Known() {
		c.logger.Debug("classifier fallback returned unknown label %q, using default", label)
		return core.IntentDefault, nil
	}
	return intent, nil
}

// matchRules runs the deterministic fast path.
func (c *Classifier) matchRules(message string) (core.Intent, bool) {
	clean := normalizer.ReplaceAllString(message, "")
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(clean, kw) {
				return r.Intent, true
			}
		}
		for _, re := range r.Patterns {
			if re.MatchString(clean) {
				return r.Intent, true
			}
		}
	}
	return "", false
}

// ParseLabel maps a raw model response to an intent. Out-of-set or
// unparseable responses map to default.
func ParseLabel(raw string) core.Intent {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, `"'.:`)
	switch core.Intent(label) {
	case core.IntentPrice, core.IntentTech, core.IntentDefault:
		return core.Intent(label)
	}
	// Tolerate verbose answers that still name exactly one label.
	var found core.Intent
	for _, candidate := range []core.Intent{core.IntentPrice, core.IntentTech, core.IntentDefault} {
		if strings.Contains(label, string(candidate)) {
			if found != "" {
				return core.IntentDefault
			}
			found = candidate
		}
	}
	if found != "" {
		return found
	}
	return core.IntentDefault
}

func buildDialogue(history []core.Message, message string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == core.RoleAssistant || m.Role == core.RoleOperator {
			role = "assistant"
		}
		msgs = append(msgs, model.ChatMessage{Role: role, Content: m.Content})
	}
	return append(msgs, model.ChatMessage{Role: "user", Content: message})
}
