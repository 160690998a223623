package domain

import "time"

// SignalAction is the direction a strategy wants to trade.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
)

// Signal is an ephemeral trade proposal emitted by a strategy.
// It is consumed exactly once by the risk manager.
type Signal struct {
	StrategyID    string
	Symbol        string
	TokenAddress  string
	Action        SignalAction
	Strength      float64 // [0,1]
	SuggestedSize float64 // proposed notional
	Price         float64
	PoolLiquidity float64 // liquidity backing the trade, for impact checks
	Volatility    float64 // observed, for volatility-adjusted sizing
	Rationale     string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// Verdict is the outcome of a risk evaluation.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// Decision is the risk manager's answer to a signal. DecisionID is stable
// across retries so submission stays idempotent.
type Decision struct {
	DecisionID     string
	Signal         *Signal
	Verdict        Verdict
	SizedQuantity  float64
	StopPrice      *float64
	TakePrice      *float64
	RiskScore      float64
	RejectReason   ErrorCode
	RejectDetail   string
	EvaluatedAt    time.Time
	CloseOf        string // position id when this decision closes a position
	CloseReason    CloseReason
	GraduationNear bool
}

// Accepted reports whether the decision cleared risk.
func (d *Decision) Accepted() bool {
	return d.Verdict == VerdictAccept
}

// Fill reports a confirmed execution of an accepted decision.
type Fill struct {
	DecisionID  string
	Signature   string
	BundleID    string
	Symbol      string
	StrategyID  string
	Price       float64
	Quantity    float64
	FeeLamports uint64
	FilledAt    time.Time
}
