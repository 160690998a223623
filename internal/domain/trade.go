package domain

import "time"

// TradeRecord is the durable history row written after every confirmed
// execution. Unlike positions it is append-only.
type TradeRecord struct {
	TradeID     string // deterministic: hash of decision id and signature
	DecisionID  string
	PositionID  string
	Symbol      string
	StrategyID  string
	Action      SignalAction
	Quantity    float64
	Price       float64
	FeeLamports uint64
	Signature   string
	BundleID    string
	ExecutedAt  time.Time
}
