// Package solana provides the JSON-RPC and WebSocket clients the engine
// uses for chain access: submitting transactions, confirming signatures
// and reading balances and token supply.
package solana

import "context"

// Commitment is the confirmation level requested from the RPC node.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// RPCClient defines the Solana RPC HTTP surface the engine depends on.
type RPCClient interface {
	// SendTransaction submits a base64-encoded signed transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses returns the status for each signature; a nil
	// entry means the signature is unknown to the node.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenSupply returns the supply of an SPL mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// GetLatestBlockhash returns a recent blockhash for transaction
	// assembly.
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// SignatureStatus is one entry of a getSignatureStatuses response.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int
	ConfirmationStatus Commitment
	Err                interface{}
}

// Confirmed reports whether the status satisfies the wanted commitment.
func (s *SignatureStatus) Confirmed(want Commitment) bool {
	if s == nil || s.Err != nil {
		return false
	}
	switch want {
	case CommitmentProcessed:
		return true
	case CommitmentConfirmed:
		return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
	case CommitmentFinalized:
		return s.ConfirmationStatus == CommitmentFinalized
	default:
		return false
	}
}

// Failed reports whether the chain recorded an execution error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Err != nil
}

// TokenAmount is an SPL token amount with its decimals.
type TokenAmount struct {
	Amount   string
	Decimals int
	UIAmount float64
}
