package bargain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// OutcomeKind is the closed result type every buyer message is reduced to
// before it may drive a state transition. Free-text model output never
// reaches the state machine directly.
type OutcomeKind string

const (
	// OutcomeOffer carries a concrete counter-offer amount.
	OutcomeOffer OutcomeKind = "offer"
	// OutcomeAccept is an explicit acceptance of the standing offer.
	OutcomeAccept OutcomeKind = "accept"
	// OutcomeReject is an explicit walk-away.
	OutcomeReject OutcomeKind = "reject"
	// OutcomeUnparseable means no transition input could be extracted. It has
	// a defined fallback (no transition) and is never silently ignored.
	OutcomeUnparseable OutcomeKind = "unparseable"
)

// Outcome is the parsed transition input for the engine.
type Outcome struct {
	Kind   OutcomeKind
	Amount decimal.Decimal // set when Kind == OutcomeOffer
}

// ParseModelOutcome strictly parses the extraction model's single-line
// response. Accepted forms (case-insensitive, surrounding prose tolerated on
// the OFFER amount only):
//
//	OFFER <amount>
//	ACCEPT
//	REJECT
//	NONE
//
// Anything else is unparseable.
func ParseModelOutcome(raw string) Outcome {
	line := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case line == "ACCEPT":
		return Outcome{Kind: OutcomeAccept}
	case line == "REJECT":
		return Outcome{Kind: OutcomeReject}
	case line == "NONE":
		return Outcome{Kind: OutcomeUnparseable}
	}
	if rest, ok := strings.CutPrefix(line, "OFFER"); ok {
		if amount, err := decimal.NewFromString(strings.TrimSpace(rest)); err == nil && amount.IsPositive() {
			return Outcome{Kind: OutcomeOffer, Amount: amount}
		}
	}
	return Outcome{Kind: OutcomeUnparseable}
}

var (
	// offerPattern pulls a bare numeric price from buyer text, with the
	// common currency suffixes.
	offerPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:元|块钱|块)?`)

	acceptPhrases = []string{"成交", "就这个价", "好的买了", "可以买", "行买了", "deal"}
	rejectPhrases = []string{"不要了", "算了", "不买了", "太贵了不要"}
)

// ParseBuyerMessage is the deterministic fast path over the raw buyer text:
// explicit accept/reject phrases first, then a lone numeric offer. Messages
// that need language understanding come back unparseable and are handed to
// the extraction model.
func ParseBuyerMessage(text string) Outcome {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)
	for _, p := range acceptPhrases {
		if strings.Contains(lowered, p) {
			return Outcome{Kind: OutcomeAccept}
		}
	}
	for _, p := range rejectPhrases {
		if strings.Contains(lowered, p) {
			return Outcome{Kind: OutcomeReject}
		}
	}
	if m := offerPattern.FindStringSubmatch(trimmed); m != nil {
		// Only trust the number when the message is essentially just the
		// offer ("85", "85元", "能不能85"), not an incidental digit in prose.
		if len([]rune(trimmed)) <= len([]rune(m[0]))+6 {
			if amount, err := decimal.NewFromString(m[1]); err == nil && amount.IsPositive() {
				return Outcome{Kind: OutcomeOffer, Amount: amount}
			}
		}
	}
	return Outcome{Kind: OutcomeUnparseable}
}
