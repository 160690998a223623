// Package idhash computes deterministic identifiers so risk decisions and
// order submissions stay idempotent across retries and restarts.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// ComputeDecisionID computes a stable decision id using SHA256.
// Formula: SHA256(strategy_id|symbol|action|created_at_ms)
// Returns hex-encoded hash (64 characters). Retrying the same signal
// yields the same id, which is what makes submission at-most-once.
func ComputeDecisionID(sig *domain.Signal) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		sig.StrategyID,
		sig.Symbol,
		string(sig.Action),
		sig.CreatedAt.UnixMilli(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a stable position id from the fill that
// opened it. Formula: SHA256(decision_id|signature).
func ComputePositionID(decisionID, signature string) string {
	data := fmt.Sprintf("%s|%s", decisionID, signature)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
