package aggregator

import (
	"math"
	"sort"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Agreement falls linearly from 1 at zero dispersion to 0 once the
// relative dispersion reaches this band, and stays 0 beyond it.
const agreementNoiseBand = 0.02

// weighted is one (value, weight) pair for fusion.
type weighted struct {
	value  float64
	weight float64
}

// weightedMedian returns the interpolated weighted median: the value at
// which the centered cumulative weight crosses half of the total. A
// single outlier cannot move it by more than one source's share of the
// total weight.
func weightedMedian(points []weighted) float64 {
	if len(points) == 0 {
		return 0
	}
	if len(points) == 1 {
		return points[0].value
	}

	sorted := append([]weighted(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].value < sorted[j].value })

	var total float64
	for _, p := range sorted {
		total += p.weight
	}
	half := total / 2

	// Centered cumulative weight of each point.
	centers := make([]float64, len(sorted))
	cum := 0.0
	for i, p := range sorted {
		centers[i] = cum + p.weight/2
		cum += p.weight
	}

	if half <= centers[0] {
		return sorted[0].value
	}
	for i := 1; i < len(sorted); i++ {
		if half <= centers[i] {
			span := centers[i] - centers[i-1]
			if span == 0 {
				return sorted[i].value
			}
			frac := (half - centers[i-1]) / span
			return sorted[i-1].value + frac*(sorted[i].value-sorted[i-1].value)
		}
	}
	return sorted[len(sorted)-1].value
}

// agreement scores how tightly the quotes cluster around consensus using
// the weighted median absolute deviation. A robust measure is required
// here: one outlier source must dent agreement, not zero it.
func agreement(points []weighted, consensus float64) float64 {
	if len(points) <= 1 || consensus == 0 {
		return 1
	}

	deviations := make([]weighted, len(points))
	for i, p := range points {
		deviations[i] = weighted{value: math.Abs(p.value - consensus), weight: p.weight}
	}
	mad := weightedMedian(deviations)

	relative := mad / math.Abs(consensus)
	return 1 - math.Min(1, relative/agreementNoiseBand)
}

// confidence combines source count, price agreement and the best source
// class present. Monotonically non-decreasing in count and agreement.
func confidence(sourceCount int, agree, maxWeight float64) float64 {
	countTerm := math.Min(1, float64(sourceCount)/3)
	return clamp01(0.4*countTerm + 0.4*agree + 0.2*maxWeight)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// fuse builds an AggregatedView from non-stale quotes. quotes must be
// non-empty; weights maps source id to its class weight.
func fuse(symbol string, quotes []*domain.Quote, weights func(*domain.Quote) float64) *domain.AggregatedView {
	points := make([]weighted, len(quotes))
	maxWeight := 0.0
	for i, q := range quotes {
		w := weights(q)
		points[i] = weighted{value: q.Price, weight: w}
		if w > maxWeight {
			maxWeight = w
		}
	}

	consensus := weightedMedian(points)
	agree := agreement(points, consensus)

	primary := selectPrimary(quotes, weights)

	var liquidity float64
	for _, q := range quotes {
		if q.Liquidity != nil && *q.Liquidity > liquidity {
			liquidity = *q.Liquidity
		}
	}

	return &domain.AggregatedView{
		Symbol:          symbol,
		ConsensusPrice:  consensus,
		Volume:          primary.Volume24h,
		LiquidityDepth:  liquidity,
		SourceCount:     len(quotes),
		Confidence:      confidence(len(quotes), agree, maxWeight),
		PrimarySourceID: primary.SourceID,
	}
}

// selectPrimary picks the most trusted quote. Equal weights tie-break on
// smallest latency, then smallest age (newest timestamp).
func selectPrimary(quotes []*domain.Quote, weights func(*domain.Quote) float64) *domain.Quote {
	best := quotes[0]
	bestW := weights(best)
	for _, q := range quotes[1:] {
		w := weights(q)
		switch {
		case w > bestW:
			best, bestW = q, w
		case w == bestW:
			if q.LatencyMs < best.LatencyMs ||
				(q.LatencyMs == best.LatencyMs && q.Timestamp.After(best.Timestamp)) {
				best = q
			}
		}
	}
	return best
}
