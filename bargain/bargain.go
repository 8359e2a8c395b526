// Package bargain implements the deterministic stepped price-negotiation
// state machine. One State exists per conversation; all arithmetic is
// fixed-point decimal rounded half-up at the currency's minor unit. The
// engine is the exclusive owner of negotiation state: the router feeds it
// parsed outcomes and renders replies from the returned Result.
package bargain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stallbot/core"
	"stallbot/logging"
)

// Status is the negotiation lifecycle. Transitions are monotonic: accepted,
// rejected and exhausted are absorbing.
type Status string

const (
	// StatusNegotiating is the only non-terminal status.
	StatusNegotiating Status = "negotiating"
	// StatusAccepted means the buyer took the standing offer.
	StatusAccepted Status = "accepted"
	// StatusRejected means the buyer explicitly walked away.
	StatusRejected Status = "rejected"
	// StatusExhausted means the step budget ran out with the buyer still
	// below the floor; the standing offer is final.
	StatusExhausted Status = "exhausted"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s != StatusNegotiating }

// State is the per-conversation negotiation record.
// Invariants: Floor <= LastOffer <= Original, StepsUsed <= StepCount.
type State struct {
	Key        core.ConversationKey `json:"key"`
	Original   decimal.Decimal      `json:"original_price"`
	Floor      decimal.Decimal      `json:"floor_price"`
	StepCount  int                  `json:"step_count"`
	StepsUsed  int                  `json:"steps_used"`
	LastOffer  decimal.Decimal      `json:"last_offer"`
	Status     Status               `json:"status"`
	FinalPrice decimal.Decimal      `json:"final_price,omitempty"`
	Updated    time.Time            `json:"updated"`
}

// ResultKind tells the router which reply family to render.
type ResultKind string

const (
	// ResultCounter carries a fresh counter-offer in State.LastOffer.
	ResultCounter ResultKind = "counter"
	// ResultAccepted closes the deal at State.FinalPrice.
	ResultAccepted ResultKind = "accepted"
	// ResultRejected acknowledges the buyer walking away.
	ResultRejected ResultKind = "rejected"
	// ResultExhausted restates the final price with no further discount.
	ResultExhausted ResultKind = "exhausted"
	// ResultNoChange means the message carried no transition input or the
	// state was already terminal.
	ResultNoChange ResultKind = "no_change"
)

// Result is the applied transition outcome handed back to the router.
type Result struct {
	Kind  ResultKind
	State State
}

// Options configure an Engine.
type Options struct {
	// FloorPercentage sets floor = original * pct / 100. Range 0-100.
	FloorPercentage int
	// StepCount is the fixed discount step budget per conversation.
	StepCount int
	// Scale is the currency minor-unit exponent used for rounding.
	Scale int32
	// Strict makes invariant violations fail the transition instead of
	// clamping. Tests run strict; production clamps and logs.
	Strict bool
	Logger logging.Logger
}

// Engine owns all negotiation state, keyed by conversation. Safe for
// concurrent use, though the router already serializes per conversation.
type Engine struct {
	mu      sync.Mutex
	states  map[core.ConversationKey]*State
	applied map[string]Result // message id -> recorded outcome (dedup)

	floorPct  decimal.Decimal
	stepCount int
	scale     int32
	strict    bool
	logger    logging.Logger
}

// NewEngine constructs an engine from configuration.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{FloorPercentage: 80, StepCount: 3, Scale: 2, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		states:    make(map[core.ConversationKey]*State),
		applied:   make(map[string]Result),
		floorPct:  decimal.NewFromInt(int64(opts.FloorPercentage)).Div(decimal.NewFromInt(100)),
		stepCount: opts.StepCount,
		scale:     opts.Scale,
		strict:    opts.Strict,
		logger:    opts.Logger,
	}
}

// Apply processes one parsed outcome for the given message id and item.
// Re-applying the same message id returns the recorded result without
// advancing state, which makes upstream retries harmless.
func (e *Engine) Apply(key core.ConversationKey, messageID string, item core.Item, outcome Outcome) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.applied[messageID]; ok {
		return prev, nil
	}

	st := e.stateLocked(key, item)
	res, err := e.transitionLocked(st, outcome)
	if err != nil {
		return Result{}, err
	}
	e.applied[messageID] = res
	e.logger.Debug("bargain transition conversation=%s kind=%s steps_used=%d offer=%s status=%s",
		key, res.Kind, st.StepsUsed, st.LastOffer, st.Status)
	return res, nil
}

// State returns a copy of the negotiation state, if one exists.
func (e *Engine) State(key core.ConversationKey) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Snapshot returns copies of all negotiation states for reporting.
func (e *Engine) Snapshot() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	return out
}

// SuccessfulNegotiations counts accepted conversations.
func (e *Engine) SuccessfulNegotiations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, st := range e.states {
		if st.Status == StatusAccepted {
			n++
		}
	}
	return n
}

func (e *Engine) stateLocked(key core.ConversationKey, item core.Item) *State {
	if st, ok := e.states[key]; ok {
		return st
	}
	st := &State{
		Key:       key,
		Original:  item.Price,
		Floor:     item.Price.Mul(e.floorPct),
		StepCount: e.stepCount,
		LastOffer: item.Price,
		Status:    StatusNegotiating,
		Updated:   time.Now(),
	}
	e.states[key] = st
	return st
}

func (e *Engine) transitionLocked(st *State, outcome Outcome) (Result, error) {
	if st.Status.Terminal() {
		return Result{Kind: ResultNoChange, State: *st}, nil
	}

	switch outcome.Kind {
	case OutcomeAccept:
		st.Status = StatusAccepted
		st.FinalPrice = st.LastOffer
		st.Updated = time.Now()
		return Result{Kind: ResultAccepted, State: *st}, nil

	case OutcomeReject:
		st.Status = StatusRejected
		st.Updated = time.Now()
		return Result{Kind: ResultRejected, State: *st}, nil

	case OutcomeOffer:
		return e.counterLocked(st, outcome.Amount)

	default:
		return Result{Kind: ResultNoChange, State: *st}, nil
	}
}

// counterLocked applies a buyer counter-offer p.
func (e *Engine) counterLocked(st *State, p decimal.Decimal) (Result, error) {
	now := time.Now()

	// Meeting or beating the standing offer closes at the standing offer,
	// not at the original price.
	if p.Cmp(st.LastOffer) >= 0 {
		st.Status = StatusAccepted
		st.FinalPrice = st.LastOffer
		st.Updated = now
		return Result{Kind: ResultAccepted, State: *st}, nil
	}

	// Below the standing offer: the step budget governs whether another
	// discount is produced, regardless of which side of the floor p is on.
	if st.StepsUsed == st.StepCount {
		st.Status = StatusExhausted
		st.Updated = now
		return Result{Kind: ResultExhausted, State: *st}, nil
	}

	st.StepsUsed++
	// Even remaining-budget amortization: spread what is left above the
	// floor over the remaining steps, so late counters still land above it.
	remaining := decimal.NewFromInt(int64(st.StepCount - st.StepsUsed + 1))
	next := st.LastOffer.Sub(st.LastOffer.Sub(st.Floor).Div(remaining)).Round(e.scale)

	if next.Cmp(st.Floor) < 0 || next.Cmp(st.Original) > 0 {
		violation := &core.InvariantViolationError{
			Conversation: st.Key,
			Offer:        next,
			Floor:        st.Floor,
			Original:     st.Original,
		}
		if e.strict {
			return Result{}, violation
		}
		e.logger.Error("clamping out-of-band offer: %v", violation)
		if next.Cmp(st.Floor) < 0 {
			next = st.Floor.RoundCeil(e.scale)
		} else {
			next = st.Original
		}
	}

	st.LastOffer = next
	st.Updated = now
	return Result{Kind: ResultCounter, State: *st}, nil
}
