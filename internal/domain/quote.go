package domain

import "time"

// SourceClass ranks how trustworthy a venue class is during fusion.
type SourceClass string

const (
	SourceClassCEX         SourceClass = "CEX"
	SourceClassAMM         SourceClass = "AMM"
	SourceClassAggregator  SourceClass = "AGGREGATOR"
	SourceClassEnhancedRPC SourceClass = "ENHANCED_RPC"
	SourceClassLaunchpad   SourceClass = "LAUNCHPAD"
)

// DefaultSourceWeight returns the priority weight for a source class.
// Higher means more trusted during fusion.
func DefaultSourceWeight(c SourceClass) float64 {
	switch c {
	case SourceClassCEX:
		return 1.0
	case SourceClassAMM:
		return 0.9
	case SourceClassAggregator:
		return 0.85
	case SourceClassEnhancedRPC:
		return 0.8
	case SourceClassLaunchpad:
		return 0.6
	default:
		return 0.5
	}
}

// Quote is one source's observation of one symbol. Immutable once produced.
type Quote struct {
	Symbol    string
	Price     float64
	Volume24h float64
	Bid       *float64
	Ask       *float64
	Liquidity *float64
	Timestamp time.Time
	SourceID  string
	Class     SourceClass
	LatencyMs int64
}

// Age returns how old the quote is relative to now.
func (q *Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// Stale reports whether the quote is older than the freshness window.
func (q *Quote) Stale(now time.Time, window time.Duration) bool {
	return q.Age(now) > window
}

// AggregatedView is the fused per-symbol state produced by the aggregator.
type AggregatedView struct {
	Symbol          string
	ConsensusPrice  float64
	Volume          float64
	LiquidityDepth  float64
	SourceCount     int
	Confidence      float64 // [0,1]
	PrimarySourceID string
	UpdatedAt       time.Time
}

// VenueEventKind discriminates events arriving from venue subscriptions.
type VenueEventKind string

const (
	VenueEventQuote    VenueEventKind = "QUOTE"
	VenueEventNewPool  VenueEventKind = "NEW_POOL"
	VenueEventNewToken VenueEventKind = "NEW_TOKEN"
	VenueEventFill     VenueEventKind = "FILL"
)

// VenueEvent is a single message multiplexed from a venue subscription.
// Exactly one payload field is set, matching Kind.
type VenueEvent struct {
	Kind     VenueEventKind
	SourceID string
	Quote    *Quote
	NewPool  *NewPoolEvent
	NewToken *NewTokenEvent
	Fill     *Fill
}

// NewPoolEvent announces a freshly created AMM pool. PoolAddress may be
// empty when the source only saw the creating transaction.
type NewPoolEvent struct {
	PoolAddress  string
	TxSignature  string
	BaseMint     string
	QuoteMint    string
	Symbol       string
	LiquidityUSD float64
	FeeBps       int
	CreatedAt    time.Time
}

// NewTokenEvent announces a token appearing on a launchpad bonding curve.
type NewTokenEvent struct {
	Mint       string
	Symbol     string
	Creator    string
	MarketCap  float64
	DetectedAt time.Time
}
