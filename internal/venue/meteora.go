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

// MeteoraClient reads DLMM pair state from the Meteora API.
type MeteoraClient struct {
	id      string
	baseURL string
	client  *http.Client
	limiter *tokenBucket
	cache   *quoteCache
}

// NewMeteoraClient creates a Meteora DLMM client.
func NewMeteoraClient(baseURL string, ratePerSecond float64, timeout time.Duration) *MeteoraClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MeteoraClient{
		id:      "meteora",
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newTokenBucket(ratePerSecond),
		cache:   newQuoteCache(0),
	}
}

func (c *MeteoraClient) ID() string                { return c.id }
func (c *MeteoraClient) Class() domain.SourceClass { return domain.SourceClassAMM }

type meteoraPair struct {
	Name         string `json:"name"`
	CurrentPrice string `json:"current_price"`
	TradeVolume  string `json:"trade_volume_24h"`
	LiquidityUSD string `json:"liquidity"`
	BinStep      int    `json:"bin_step"`
	BaseFeePct   string `json:"base_fee_percentage"`
}

// Quote fetches the DLMM bin price for symbol.
func (c *MeteoraClient) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := c.cache.get(symbol); ok {
		return q, nil
	}
	if err := c.limiter.take(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	u := fmt.Sprintf("%s/pair/%s", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: meteora: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: meteora", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: meteora status %d", domain.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: meteora: %v", domain.ErrUnavailable, err)
	}

	var pair meteoraPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("%w: meteora: %v", domain.ErrParse, err)
	}

	price, err := strconv.ParseFloat(pair.CurrentPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: meteora price %q: %v", domain.ErrParse, pair.CurrentPrice, err)
	}
	volume, _ := strconv.ParseFloat(pair.TradeVolume, 64)
	liquidity, _ := strconv.ParseFloat(pair.LiquidityUSD, 64)

	q := &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Volume24h: volume,
		Liquidity: &liquidity,
		Timestamp: time.Now(),
		SourceID:  c.id,
		Class:     c.Class(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	c.cache.put(symbol, q)
	return q, nil
}

var _ Client = (*MeteoraClient)(nil)
