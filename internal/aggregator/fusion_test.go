package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

func classWeight(q *domain.Quote) float64 {
	return domain.DefaultSourceWeight(q.Class)
}

func quote(source string, class domain.SourceClass, price float64) *domain.Quote {
	return &domain.Quote{
		Symbol:   "SOL/USDC",
		Price:    price,
		SourceID: source,
		Class:    class,
	}
}

func TestWeightedMedian_SingleAndUniform(t *testing.T) {
	if got := weightedMedian([]weighted{{42, 1}}); got != 42.0 {
		t.Errorf("single point: expected 42, got %v", got)
	}

	// Odd uniform weights: plain median.
	m := weightedMedian([]weighted{{1, 1}, {2, 1}, {3, 1}})
	if math.Abs(m-2.0) > 1e-9 {
		t.Errorf("uniform median: expected 2, got %v", m)
	}
}

func TestFuse_OneOutlierBarelyMovesConsensus(t *testing.T) {
	quotes := []*domain.Quote{
		quote("binance", domain.SourceClassCEX, 100),
		quote("raydium", domain.SourceClassAMM, 101),
		quote("jupiter", domain.SourceClassAggregator, 99),
		quote("pumpfun", domain.SourceClassLaunchpad, 150),
	}

	view := fuse("SOL/USDC", quotes, classWeight)

	if math.Abs(view.ConsensusPrice-100.34) > 0.05 {
		t.Errorf("expected consensus near 100.34, got %v", view.ConsensusPrice)
	}
	if view.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %v", view.Confidence)
	}
	if view.SourceCount != 4 {
		t.Errorf("expected 4 sources, got %d", view.SourceCount)
	}
	if view.PrimarySourceID != "binance" {
		t.Errorf("expected binance primary, got %s", view.PrimarySourceID)
	}
}

func TestFuse_ThreeAgreeingSources(t *testing.T) {
	quotes := []*domain.Quote{
		quote("binance", domain.SourceClassCEX, 100),
		quote("raydium", domain.SourceClassAMM, 101),
		quote("jupiter", domain.SourceClassAggregator, 99),
	}

	view := fuse("SOL/USDC", quotes, classWeight)

	// Consensus sits between the two most-trusted observations.
	if view.ConsensusPrice < 100.0 || view.ConsensusPrice > 100.6 {
		t.Errorf("expected consensus in [100, 100.6], got %v", view.ConsensusPrice)
	}
	if view.SourceCount != 3 {
		t.Errorf("expected 3 sources, got %d", view.SourceCount)
	}
	if view.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %v", view.Confidence)
	}
}

func TestConfidence_MonotonicInAgreeingSources(t *testing.T) {
	var prev float64
	for n := 1; n <= 5; n++ {
		quotes := make([]*domain.Quote, n)
		for i := range quotes {
			quotes[i] = quote(string(rune('a'+i)), domain.SourceClassAMM, 100)
		}
		view := fuse("SOL/USDC", quotes, classWeight)
		if view.Confidence < prev {
			t.Errorf("confidence dropped from %v to %v when adding agreeing source %d",
				prev, view.Confidence, n)
		}
		prev = view.Confidence
	}
}

func TestMedianRobustness(t *testing.T) {
	base := []*domain.Quote{
		quote("binance", domain.SourceClassCEX, 100),
		quote("raydium", domain.SourceClassAMM, 100),
		quote("jupiter", domain.SourceClassAggregator, 100),
	}
	baseView := fuse("SOL/USDC", base, classWeight)

	outlier := []*domain.Quote{
		quote("binance", domain.SourceClassCEX, 100),
		quote("raydium", domain.SourceClassAMM, 115), // +15%
		quote("jupiter", domain.SourceClassAggregator, 100),
	}
	outlierView := fuse("SOL/USDC", outlier, classWeight)

	totalWeight := 1.0 + 0.9 + 0.85
	maxShare := 1.0 / totalWeight
	outlierMagnitude := 15.0

	shift := math.Abs(outlierView.ConsensusPrice - baseView.ConsensusPrice)
	if shift >= maxShare*outlierMagnitude {
		t.Errorf("outlier moved consensus by %v, bound is %v", shift, maxShare*outlierMagnitude)
	}
}

func TestAgreement_TightVsWideSpread(t *testing.T) {
	points := []weighted{{100, 1}, {100.5, 1}, {99.8, 1}}
	consensus := weightedMedian(points)
	if got := agreement(points, consensus); got < 0.5 {
		t.Errorf("tight cluster: expected high agreement, got %v", got)
	}

	wide := []weighted{{100, 1}, {130, 1}, {70, 1}}
	if got := agreement(wide, weightedMedian(wide)); got >= 0.2 {
		t.Errorf("wide spread: expected agreement below 0.2, got %v", got)
	}
}

func TestSelectPrimary_TieBreaks(t *testing.T) {
	older := quote("amm1", domain.SourceClassAMM, 100)
	older.LatencyMs = 50
	older.Timestamp = time.UnixMilli(1000)

	faster := quote("amm2", domain.SourceClassAMM, 100)
	faster.LatencyMs = 10
	faster.Timestamp = time.UnixMilli(900)

	// Equal weight: smaller latency wins.
	primary := selectPrimary([]*domain.Quote{older, faster}, classWeight)
	if primary.SourceID != "amm2" {
		t.Errorf("latency tie-break: expected amm2, got %s", primary.SourceID)
	}

	// Equal weight and latency: newer timestamp wins.
	newer := quote("amm3", domain.SourceClassAMM, 100)
	newer.LatencyMs = 50
	newer.Timestamp = time.UnixMilli(2000)
	primary = selectPrimary([]*domain.Quote{older, newer}, classWeight)
	if primary.SourceID != "amm3" {
		t.Errorf("age tie-break: expected amm3, got %s", primary.SourceID)
	}

	// Higher weight always wins regardless of latency.
	cex := quote("binance", domain.SourceClassCEX, 100)
	cex.LatencyMs = 500
	primary = selectPrimary([]*domain.Quote{faster, cex}, classWeight)
	if primary.SourceID != "binance" {
		t.Errorf("weight ranking: expected binance, got %s", primary.SourceID)
	}
}

func TestClamp01(t *testing.T) {
	if got := clamp01(-0.5); got != 0.0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := clamp01(1.5); got != 1.0 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := clamp01(0.25); got != 0.25 {
		t.Errorf("expected 0.25, got %v", got)
	}
}
