package bargain

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"stallbot/core"
)

func testItem(price string) core.Item {
	return core.Item{ID: "item-1", Title: "键盘", Price: decimal.RequireFromString(price)}
}

func testKey() core.ConversationKey {
	return core.ConversationKey{BuyerID: "buyer-1", ItemID: "item-1"}
}

func offer(amount string) Outcome {
	return Outcome{Kind: OutcomeOffer, Amount: decimal.RequireFromString(amount)}
}

func TestEngine_FirstCounterMatchesAmortization(t *testing.T) {
	e := NewEngine(func(o *Options) {
		o.FloorPercentage = 80
		o.StepCount = 3
		o.Strict = true
	})

	res, err := e.Apply(testKey(), "m1", testItem("100"), offer("70"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Kind != ResultCounter {
		t.Fatalf("expected counter, got %s", res.Kind)
	}
	// 100 - (100-80)/3 = 93.33 rounded half-up at scale 2.
	if got := res.State.LastOffer.String(); got != "93.33" {
		t.Errorf("expected offer 93.33, got %s", got)
	}
	if res.State.StepsUsed != 1 {
		t.Errorf("expected 1 step used, got %d", res.State.StepsUsed)
	}
}

func TestEngine_AcceptAtStandingOfferNotOriginal(t *testing.T) {
	e := NewEngine(func(o *Options) { o.Strict = true })

	if _, err := e.Apply(testKey(), "m1", testItem("100"), offer("70")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 95 beats the standing 93.33, so the deal closes at 93.33.
	res, err := e.Apply(testKey(), "m2", testItem("100"), offer("95"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Kind != ResultAccepted {
		t.Fatalf("expected accepted, got %s", res.Kind)
	}
	if got := res.State.FinalPrice.String(); got != "93.33" {
		t.Errorf("expected final price 93.33, got %s", got)
	}
	if res.State.Status != StatusAccepted {
		t.Errorf("expected accepted status, got %s", res.State.Status)
	}
}

func TestEngine_OffersNeverIncreaseAndNeverBreachFloor(t *testing.T) {
	e := NewEngine(func(o *Options) {
		o.FloorPercentage = 80
		o.StepCount = 3
		o.Strict = true
	})

	floor := decimal.RequireFromString("80")
	prev := decimal.RequireFromString("100")
	for i := 0; i < 3; i++ {
		res, err := e.Apply(testKey(), fmt.Sprintf("m%d", i), testItem("100"), offer("50"))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Kind != ResultCounter {
			t.Fatalf("step %d: expected counter, got %s", i, res.Kind)
		}
		if res.State.LastOffer.Cmp(prev) > 0 {
			t.Errorf("step %d: offer increased %s -> %s", i, prev, res.State.LastOffer)
		}
		if res.State.LastOffer.Cmp(floor) < 0 {
			t.Errorf("step %d: offer %s below floor %s", i, res.State.LastOffer, floor)
		}
		prev = res.State.LastOffer
	}

	// Fourth lowball exhausts the budget.
	res, err := e.Apply(testKey(), "m-final", testItem("100"), offer("50"))
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if res.Kind != ResultExhausted {
		t.Fatalf("expected exhausted, got %s", res.Kind)
	}
	if res.State.Status != StatusExhausted {
		t.Errorf("expected exhausted status, got %s", res.State.Status)
	}
	if res.State.LastOffer.Cmp(prev) != 0 {
		t.Errorf("exhaustion changed the standing offer %s -> %s", prev, res.State.LastOffer)
	}
}

func TestEngine_TerminalStatesAreAbsorbing(t *testing.T) {
	e := NewEngine(func(o *Options) { o.Strict = true })

	if _, err := e.Apply(testKey(), "m1", testItem("100"), Outcome{Kind: OutcomeReject}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	res, err := e.Apply(testKey(), "m2", testItem("100"), offer("95"))
	if err != nil {
		t.Fatalf("post-terminal apply: %v", err)
	}
	if res.Kind != ResultNoChange {
		t.Errorf("expected no_change after terminal, got %s", res.Kind)
	}
	if res.State.Status != StatusRejected {
		t.Errorf("terminal status mutated to %s", res.State.Status)
	}
}

func TestEngine_DuplicateMessageIDReturnsRecordedResult(t *testing.T) {
	e := NewEngine(func(o *Options) { o.Strict = true })

	first, err := e.Apply(testKey(), "m1", testItem("100"), offer("70"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	replay, err := e.Apply(testKey(), "m1", testItem("100"), offer("70"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Kind != first.Kind || replay.State.StepsUsed != first.State.StepsUsed {
		t.Errorf("replay diverged: %+v vs %+v", replay, first)
	}
	if st, _ := e.State(testKey()); st.StepsUsed != 1 {
		t.Errorf("replay advanced the state: %d steps used", st.StepsUsed)
	}
}

func TestEngine_UnparseableLeavesStateUntouched(t *testing.T) {
	e := NewEngine(func(o *Options) { o.Strict = true })

	res, err := e.Apply(testKey(), "m1", testItem("100"), Outcome{Kind: OutcomeUnparseable})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Kind != ResultNoChange {
		t.Fatalf("expected no_change, got %s", res.Kind)
	}
	if res.State.StepsUsed != 0 || res.State.Status != StatusNegotiating {
		t.Errorf("state advanced on unparseable input: %+v", res.State)
	}
}

func TestEngine_ZeroDiscountWhenFloorEqualsOriginal(t *testing.T) {
	e := NewEngine(func(o *Options) {
		o.FloorPercentage = 100
		o.StepCount = 3
		o.Strict = true
	})

	res, err := e.Apply(testKey(), "m1", testItem("100"), offer("90"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Kind != ResultCounter {
		t.Fatalf("expected counter, got %s", res.Kind)
	}
	if got := res.State.LastOffer.String(); got != "100" {
		t.Errorf("floor==original must hold the price, got %s", got)
	}
}

func TestEngine_SuccessfulNegotiationsCountsAccepted(t *testing.T) {
	e := NewEngine()

	k1 := core.ConversationKey{BuyerID: "b1", ItemID: "i1"}
	k2 := core.ConversationKey{BuyerID: "b2", ItemID: "i1"}
	if _, err := e.Apply(k1, "m1", testItem("100"), Outcome{Kind: OutcomeAccept}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := e.Apply(k2, "m2", testItem("100"), Outcome{Kind: OutcomeReject}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if n := e.SuccessfulNegotiations(); n != 1 {
		t.Errorf("expected 1 successful negotiation, got %d", n)
	}
	if len(e.Snapshot()) != 2 {
		t.Errorf("expected 2 states in snapshot")
	}
}
