package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/solana"
	"github.com/SynergiaOS/SolanaSniper/internal/wallet"
)

// BundleStatus is the relay-side lifecycle of a bundle.
type BundleStatus string

const (
	BundleStatusPending BundleStatus = "Pending"
	BundleStatusLanded  BundleStatus = "Landed"
	BundleStatusFailed  BundleStatus = "Failed"
)

// Terminal reports whether the relay will not change the status anymore.
func (s BundleStatus) Terminal() bool {
	return s == BundleStatusLanded || s == BundleStatusFailed
}

// JitoClient submits tip-bearing bundles to the MEV-protected relay.
type JitoClient struct {
	relayURL    string
	tipAccounts []string
	maxTip      uint64
	client      *http.Client
	rpc         solana.RPCClient
	log         *zap.Logger

	// round-robin cursor over tip accounts
	tipCursor atomic.Uint64
	requestID atomic.Uint64
}

// NewJitoClient creates the relay client. rpc supplies recent blockhashes
// for tip transactions.
func NewJitoClient(relayURL string, tipAccounts []string, maxTipLamports uint64, rpc solana.RPCClient, log *zap.Logger) *JitoClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &JitoClient{
		relayURL:    relayURL,
		tipAccounts: tipAccounts,
		maxTip:      maxTipLamports,
		client:      &http.Client{Timeout: 10 * time.Second},
		rpc:         rpc,
		log:         log,
	}
}

// nextTipAccount rotates round-robin through the configured accounts.
func (c *JitoClient) nextTipAccount() string {
	i := c.tipCursor.Add(1) - 1
	return c.tipAccounts[i%uint64(len(c.tipAccounts))]
}

// BuildTipTransaction signs a transfer to the next tip account. Tips above
// the configured ceiling are clamped.
func (c *JitoClient) BuildTipTransaction(ctx context.Context, kp *wallet.Keypair, tipLamports uint64) (string, error) {
	if tipLamports > c.maxTip {
		tipLamports = c.maxTip
	}
	account := c.nextTipAccount()

	if on, err := wallet.IsOnCurve(account); err != nil || !on {
		return "", fmt.Errorf("tip account %s is not a valid wallet address", account)
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("tip blockhash: %w", err)
	}
	return solana.BuildTransferTransaction(kp, account, tipLamports, blockhash)
}

type jitoRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jitoResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitBundle sends the base64 transaction array, tip first, and returns
// the relay bundle id.
func (c *JitoClient) SubmitBundle(ctx context.Context, transactions []string) (string, error) {
	var result string
	err := c.call(ctx, "sendBundle", []interface{}{
		transactions,
		map[string]string{"encoding": "base64"},
	}, &result)
	if err != nil {
		return "", err
	}
	return result, nil
}

type bundleStatusResult struct {
	Value []struct {
		BundleID           string `json:"bundle_id"`
		ConfirmationStatus string `json:"confirmation_status"`
		Err                struct {
			Ok *struct{} `json:"Ok"`
		} `json:"err"`
	} `json:"value"`
}

// GetBundleStatus polls the relay for a bundle's state.
func (c *JitoClient) GetBundleStatus(ctx context.Context, bundleID string) (BundleStatus, error) {
	var result bundleStatusResult
	err := c.call(ctx, "getBundleStatuses", []interface{}{[]string{bundleID}}, &result)
	if err != nil {
		return "", err
	}
	if len(result.Value) == 0 {
		return BundleStatusPending, nil
	}
	switch result.Value[0].ConfirmationStatus {
	case "confirmed", "finalized":
		return BundleStatusLanded, nil
	case "failed":
		return BundleStatusFailed, nil
	default:
		return BundleStatusPending, nil
	}
}

// WaitForBundle polls until the bundle is terminal or the timeout lapses.
// A timeout surfaces as BundleTimeout.
func (c *JitoClient) WaitForBundle(ctx context.Context, bundleID string, timeout time.Duration) (BundleStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		status, err := c.GetBundleStatus(ctx, bundleID)
		if err != nil {
			c.log.Debug("bundle status poll failed", zap.String("bundle", bundleID), zap.Error(err))
		} else if status.Terminal() {
			return status, nil
		}

		if time.Now().After(deadline) {
			return BundleStatusPending, domain.NewCodedError(domain.CodeBundleTimeout,
				fmt.Sprintf("bundle %s not terminal after %s", bundleID, timeout), nil)
		}

		select {
		case <-ctx.Done():
			return BundleStatusPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *JitoClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(jitoRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed jitoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: relay: %v", domain.ErrParse, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("relay error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if result != nil && parsed.Result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("%w: relay result: %v", domain.ErrParse, err)
		}
	}
	return nil
}
