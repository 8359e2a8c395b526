package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stallbot/bargain"
	"stallbot/core"
	"stallbot/model"
	"stallbot/prompt"
	"stallbot/search"
)

// turn carries everything an expert needs to produce a reply for one inbound
// message. Item may be the zero value when no snapshot exists.
type turn struct {
	key       core.ConversationKey
	messageID string
	text      string
	history   []core.Message
	item      core.Item
	hasItem   bool
}

// expert is one response-generation strategy bound to an intent.
type expert interface {
	respond(ctx context.Context, t *turn) (string, error)
}

// formatHistory renders the dialogue suffix the way the prompts expect,
// one "role: content" line per message.
func formatHistory(history []core.Message) string {
	var sb strings.Builder
	for i, m := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		role := "user"
		if m.Role == core.RoleAssistant || m.Role == core.RoleOperator {
			role = "assistant"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func itemDescription(t *turn) string {
	if !t.hasItem {
		return ""
	}
	return fmt.Sprintf("%s;当前商品售卖价格为:%s", t.item.Description, t.item.Price.String())
}

// priceExpert drives the bargain engine. Deterministic outcomes render from
// local templates; only messages the fast path cannot read cost an
// extraction model call, and only turns with no transition at all fall back
// to a free-form priced reply.
type priceExpert struct {
	engine    *bargain.Engine
	completer model.Completer
	prompts   *prompt.Registry
	store     core.ContextStore
	deflt     *defaultExpert
}

func (e *priceExpert) respond(ctx context.Context, t *turn) (string, error) {
	if !t.hasItem {
		// Without a price snapshot there is nothing to negotiate over.
		return e.deflt.respond(ctx, t)
	}

	outcome := bargain.ParseBuyerMessage(t.text)
	if outcome.Kind == bargain.OutcomeUnparseable {
		extracted, err := e.extract(ctx, t)
		if err != nil {
			// The extraction call failed (timeout or transport). Nothing is
			// applied to the engine so a retried delivery can still
			// negotiate; this turn degrades to a free-form reply.
			st, _ := e.engine.State(t.key)
			return e.freeform(ctx, t, st)
		}
		outcome = extracted
	}

	res, err := e.engine.Apply(t.key, t.messageID, t.item, outcome)
	if err != nil {
		return "", err
	}

	if err := e.store.IncrementBargainCount(ctx, t.key); err != nil && !errors.Is(err, core.ErrConversationNotFound) {
		return "", err
	}
	if res.State.Status.Terminal() {
		if err := e.store.SetStatus(ctx, t.key, core.ConversationCompleted); err != nil && !errors.Is(err, core.ErrConversationNotFound) {
			return "", err
		}
	}

	switch res.Kind {
	case bargain.ResultCounter:
		return e.prompts.Render(prompt.NamePriceCounter, map[string]any{"Offer": res.State.LastOffer.String()})
	case bargain.ResultAccepted:
		return e.prompts.Render(prompt.NamePriceAccepted, map[string]any{"Final": res.State.FinalPrice.String()})
	case bargain.ResultRejected:
		return e.prompts.Render(prompt.NamePriceRejected, nil)
	case bargain.ResultExhausted:
		return e.prompts.Render(prompt.NamePriceExhausted, map[string]any{"Offer": res.State.LastOffer.String()})
	}

	// No transition. A terminal conversation restates its closing line; an
	// open one gets a conversational reply from the price prompt.
	switch res.State.Status {
	case bargain.StatusExhausted:
		return e.prompts.Render(prompt.NamePriceExhausted, map[string]any{"Offer": res.State.LastOffer.String()})
	case bargain.StatusAccepted:
		return e.prompts.Render(prompt.NamePriceAccepted, map[string]any{"Final": res.State.FinalPrice.String()})
	case bargain.StatusRejected:
		return e.prompts.Render(prompt.NamePriceRejected, nil)
	}
	return e.freeform(ctx, t, res.State)
}

// extract asks the model to reduce the message to a structured outcome.
// Errors are returned, not mapped to unparseable, so the caller can avoid
// recording a transition against the message id.
func (e *priceExpert) extract(ctx context.Context, t *turn) (bargain.Outcome, error) {
	lastOffer := t.item.Price
	if st, ok := e.engine.State(t.key); ok {
		lastOffer = st.LastOffer
	}
	system, err := e.prompts.Render(prompt.NameExtract, map[string]any{"LastOffer": lastOffer.String()})
	if err != nil {
		return bargain.Outcome{}, err
	}
	raw, err := e.completer.Complete(ctx, model.Request{
		System:   system,
		Messages: []model.ChatMessage{{Role: "user", Content: t.text}},
	})
	if err != nil {
		return bargain.Outcome{}, err
	}
	return bargain.ParseModelOutcome(raw), nil
}

func (e *priceExpert) freeform(ctx context.Context, t *turn, st bargain.State) (string, error) {
	system, err := e.prompts.Render(prompt.NamePrice, map[string]any{
		"Item":         itemDescription(t),
		"History":      formatHistory(t.history),
		"BargainCount": st.StepsUsed,
	})
	if err != nil {
		return "", err
	}
	// Dynamic temperature: loosen up as the haggling drags on.
	temperature := 0.3 + float64(st.StepsUsed)*0.15
	if temperature > 0.9 {
		temperature = 0.9
	}
	return e.completer.Complete(ctx, model.Request{
		System:      system,
		Messages:    []model.ChatMessage{{Role: "user", Content: t.text}},
		Temperature: temperature,
	})
}

// techExpert answers specification questions, grounded with snippets from
// the search collaborator when one is configured.
type techExpert struct {
	completer model.Completer
	prompts   *prompt.Registry
	index     search.Index
}

func (e *techExpert) respond(ctx context.Context, t *turn) (string, error) {
	var snippets []string
	if e.index != nil && t.hasItem {
		results, err := e.index.Search(ctx, t.item.ID, "", 3)
		if err == nil {
			for _, r := range results {
				snippets = append(snippets, r.Content)
			}
		}
	}
	system, err := e.prompts.Render(prompt.NameTech, map[string]any{
		"Item":     itemDescription(t),
		"History":  formatHistory(t.history),
		"Snippets": strings.Join(snippets, "\n"),
	})
	if err != nil {
		return "", err
	}
	return e.completer.Complete(ctx, model.Request{
		System:       system,
		Messages:     []model.ChatMessage{{Role: "user", Content: t.text}},
		Temperature:  0.8,
		EnableSearch: true,
	})
}

// defaultExpert handles everything that is neither bargaining nor technical.
type defaultExpert struct {
	completer model.Completer
	prompts   *prompt.Registry
}

func (e *defaultExpert) respond(ctx context.Context, t *turn) (string, error) {
	system, err := e.prompts.Render(prompt.NameDefault, map[string]any{
		"Item":    itemDescription(t),
		"History": formatHistory(t.history),
	})
	if err != nil {
		return "", err
	}
	return e.completer.Complete(ctx, model.Request{
		System:      system,
		Messages:    []model.ChatMessage{{Role: "user", Content: t.text}},
		Temperature: 0.7,
	})
}

// SafetyFilter replaces replies containing blocked phrases with the
// configured platform warning.
type SafetyFilter struct {
	blocked []string
	warning string
}

// NewSafetyFilter builds a filter over the blocked phrase list.
func NewSafetyFilter(blocked []string, warning string) *SafetyFilter {
	return &SafetyFilter{blocked: blocked, warning: warning}
}

// Apply returns the warning when text contains any blocked phrase.
func (f *SafetyFilter) Apply(text string) string {
	for _, p := range f.blocked {
		if p != "" && strings.Contains(text, p) {
			return f.warning
		}
	}
	return text
}
