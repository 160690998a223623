package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// JupiterClient reads aggregated DEX prices from the Jupiter price API.
type JupiterClient struct {
	id      string
	baseURL string
	client  *http.Client
	limiter *tokenBucket
	cache   *quoteCache
}

// NewJupiterClient creates a Jupiter price client.
func NewJupiterClient(baseURL string, ratePerSecond float64, timeout time.Duration) *JupiterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JupiterClient{
		id:      "jupiter",
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newTokenBucket(ratePerSecond),
		cache:   newQuoteCache(0),
	}
}

func (c *JupiterClient) ID() string                { return c.id }
func (c *JupiterClient) Class() domain.SourceClass { return domain.SourceClassAggregator }

type jupiterPriceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Quote fetches the aggregated price for a mint (symbol carries the mint
// address for DEX venues).
func (c *JupiterClient) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := c.cache.get(symbol); ok {
		return q, nil
	}
	if err := c.limiter.take(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	u := fmt.Sprintf("%s?ids=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: jupiter: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: jupiter", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jupiter status %d", domain.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: jupiter: %v", domain.ErrUnavailable, err)
	}

	var parsed jupiterPriceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: jupiter: %v", domain.ErrParse, err)
	}

	entry, ok := parsed.Data[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: jupiter has no price for %s", domain.ErrUnavailable, symbol)
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: jupiter price %q: %v", domain.ErrParse, entry.Price, err)
	}

	q := &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
		SourceID:  c.id,
		Class:     c.Class(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	c.cache.put(symbol, q)
	return q, nil
}

var _ Client = (*JupiterClient)(nil)
