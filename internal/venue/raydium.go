package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// RaydiumClient reads pool state from the Raydium pairs API.
type RaydiumClient struct {
	id      string
	baseURL string
	client  *http.Client
	limiter *tokenBucket
	cache   *quoteCache
}

// NewRaydiumClient creates a Raydium client.
func NewRaydiumClient(baseURL string, ratePerSecond float64, timeout time.Duration) *RaydiumClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RaydiumClient{
		id:      "raydium",
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newTokenBucket(ratePerSecond),
		cache:   newQuoteCache(0),
	}
}

func (c *RaydiumClient) ID() string                { return c.id }
func (c *RaydiumClient) Class() domain.SourceClass { return domain.SourceClassAMM }

type raydiumPair struct {
	Name      string  `json:"name"`
	AmmID     string  `json:"ammId"`
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume24h"`
	Liquidity float64 `json:"liquidity"`
	FeeBps    int     `json:"feeBps"`
}

// Quote fetches the pool-implied price for symbol.
func (c *RaydiumClient) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := c.cache.get(symbol); ok {
		return q, nil
	}
	if err := c.limiter.take(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	pair, err := c.fetchPair(ctx, symbol)
	if err != nil {
		return nil, err
	}

	liquidity := pair.Liquidity
	q := &domain.Quote{
		Symbol:    symbol,
		Price:     pair.Price,
		Volume24h: pair.Volume24h,
		Liquidity: &liquidity,
		Timestamp: time.Now(),
		SourceID:  c.id,
		Class:     c.Class(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	c.cache.put(symbol, q)
	return q, nil
}

func (c *RaydiumClient) fetchPair(ctx context.Context, symbol string) (*raydiumPair, error) {
	u := fmt.Sprintf("%s/pairs?name=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: raydium: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: raydium", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: raydium status %d", domain.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: raydium: %v", domain.ErrUnavailable, err)
	}

	var pairs []raydiumPair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("%w: raydium: %v", domain.ErrParse, err)
	}
	for i := range pairs {
		if pairs[i].Name == symbol {
			return &pairs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: raydium has no pair %s", domain.ErrUnavailable, symbol)
}

var _ Client = (*RaydiumClient)(nil)
