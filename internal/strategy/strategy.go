// Package strategy holds the trading strategies and the manager that
// drives them.
package strategy

import (
	"context"
	"math"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Strategy analyzes an aggregated market context and may propose a trade.
type Strategy interface {
	// ID returns the strategy identifier.
	ID() string

	// RequiredSources names the venues this strategy depends on.
	RequiredSources() []string

	// Analyze inspects the context and returns a signal, or nil when the
	// context is not actionable.
	Analyze(ctx context.Context, sc *Context) (*domain.Signal, error)

	// OnFill notifies the strategy that one of its signals filled.
	OnFill(fill domain.Fill)

	// OnClose notifies the strategy that one of its positions closed.
	OnClose(close domain.PositionClose)
}

// MarketConditions carries the short-horizon market state the engine
// derives from consecutive views.
type MarketConditions struct {
	PrevPrice      float64
	PrevVolume     float64
	Volatility     float64 // relative, over the observation window
	LiquidityDepth float64
}

// Context is everything a strategy sees for one analysis call.
type Context struct {
	View       *domain.AggregatedView
	Metadata   *domain.TokenMetadata
	Pool       *domain.NewPoolEvent // set for new-pool candidates
	Portfolio  *domain.Portfolio    // read snapshot
	Market     MarketConditions
	Enrichment *domain.SentimentSummary // optional
}

// volumeMomentum scores the volume change against a 50% reference move.
func volumeMomentum(now, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return clamp01((now/prev - 1) / 0.5)
}

// priceMomentum scores the price change against a 10% reference move.
func priceMomentum(now, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return clamp01((now/prev - 1) / 0.1)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
