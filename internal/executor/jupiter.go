// Package executor routes accepted decisions to the chain: Jupiter for
// quoting and swap assembly, optionally a Jito bundle for MEV-protected
// submission, then fill confirmation over RPC.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Wrapped SOL, the input mint for buys.
const WSOLMint = "So11111111111111111111111111111111111111112"

// JupiterClient talks to the Jupiter v6 quote and swap endpoints.
type JupiterClient struct {
	quoteURL   string
	swapURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewJupiterClient creates the aggregator execution client.
func NewJupiterClient(quoteURL, swapURL string, maxRetries int, timeout time.Duration) *JupiterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &JupiterClient{
		quoteURL:   quoteURL,
		swapURL:    swapURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// QuoteRequest asks for a route between two mints.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // input amount in base units
	SlippageBps int
}

// QuoteResponse is the subset of the Jupiter quote the engine uses.
type QuoteResponse struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct string          `json:"priceImpactPct"`
	SlippageBps    int             `json:"slippageBps"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

// OutAmountUint parses the quoted output amount.
func (q *QuoteResponse) OutAmountUint() (uint64, error) {
	return strconv.ParseUint(q.OutAmount, 10, 64)
}

// GetQuote fetches a route, retrying transport failures with backoff.
// Exhausted retries surface as NoRoute.
func (c *JupiterClient) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	url := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d&swapMode=ExactIn",
		c.quoteURL, req.InputMint, req.OutputMint, req.Amount, req.SlippageBps)

	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		quote, err := c.getQuoteOnce(ctx, url)
		if err == nil {
			return quote, nil
		}
		lastErr = err
	}
	return nil, domain.NewCodedError(domain.CodeNoRoute, "jupiter quote failed", lastErr)
}

func (c *JupiterClient) getQuoteOnce(ctx context.Context, url string) (*QuoteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote status %d: %s", resp.StatusCode, string(body))
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("%w: quote: %v", domain.ErrParse, err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("quote has no route")
	}
	return &quote, nil
}

type swapRequest struct {
	QuoteResponse *QuoteResponse `json:"quoteResponse"`
	UserPublicKey string         `json:"userPublicKey"`
	WrapUnwrapSOL bool           `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"` // base64
	Error           string `json:"error,omitempty"`
}

// BuildSwap asks Jupiter to assemble the swap transaction for the quoted
// route. Returns the base64-encoded unsigned transaction.
func (c *JupiterClient) BuildSwap(ctx context.Context, quote *QuoteResponse, userPublicKey string) (string, error) {
	body, err := json.Marshal(swapRequest{
		QuoteResponse: quote,
		UserPublicKey: userPublicKey,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read swap: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed swapResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: swap: %v", domain.ErrParse, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("swap build: %s", parsed.Error)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("swap build returned no transaction")
	}
	return parsed.SwapTransaction, nil
}
