package domain

import "time"

// SentimentSummary is the optional enrichment record produced by the
// external analyzer. The core consumes it opaquely; absence is not an
// error.
type SentimentSummary struct {
	Symbol     string
	Action     string  // BUY | SELL | HOLD | REJECT
	Sentiment  float64 // [-1,1]
	Confidence float64 // [0,1]
	RiskScore  float64 // [0,1]
	Rationale  string
	Model      string
	CreatedAt  time.Time
}
