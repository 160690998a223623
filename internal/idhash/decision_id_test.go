package idhash

import (
	"testing"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

func makeSignal(ts time.Time) *domain.Signal {
	return &domain.Signal{
		StrategyID: "pumpfun_sniping",
		Symbol:     "TKN1/SOL",
		Action:     domain.ActionBuy,
		CreatedAt:  ts,
	}
}

func TestComputeDecisionID_Deterministic(t *testing.T) {
	ts := time.UnixMilli(1700000000000)

	first := ComputeDecisionID(makeSignal(ts))
	for i := 0; i < 10; i++ {
		if got := ComputeDecisionID(makeSignal(ts)); got != first {
			t.Fatalf("run %d: id not deterministic: %s != %s", i, got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("expected 64-char hex id, got %d chars", len(first))
	}
}

func TestComputeDecisionID_DistinguishesInputs(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	base := ComputeDecisionID(makeSignal(ts))

	other := makeSignal(ts)
	other.Symbol = "TKN2/SOL"
	if ComputeDecisionID(other) == base {
		t.Error("different symbol must yield a different id")
	}

	if ComputeDecisionID(makeSignal(ts.Add(time.Millisecond))) == base {
		t.Error("different timestamp must yield a different id")
	}

	sell := makeSignal(ts)
	sell.Action = domain.ActionSell
	if ComputeDecisionID(sell) == base {
		t.Error("different action must yield a different id")
	}
}

func TestComputePositionID(t *testing.T) {
	a := ComputePositionID("dec-1", "sig-1")
	b := ComputePositionID("dec-1", "sig-1")
	c := ComputePositionID("dec-1", "sig-2")

	if a != b {
		t.Error("same inputs must yield the same id")
	}
	if a == c {
		t.Error("different signature must yield a different id")
	}
	if len(a) != 64 {
		t.Errorf("expected 64-char hex id, got %d chars", len(a))
	}
}
