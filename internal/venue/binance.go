package venue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// BinanceClient is the CEX reference source. Only majors trade here, so it
// anchors the consensus for pairs like SOL/USDC; meme tokens simply fail
// with Unavailable and the aggregator drops the source.
type BinanceClient struct {
	id      string
	spot    *binance.Client
	limiter *tokenBucket
	cache   *quoteCache
}

// NewBinanceClient creates the CEX reference client. Keys may be empty for
// public market data.
func NewBinanceClient(apiKey, secretKey, baseURL string, ratePerSecond float64) *BinanceClient {
	spot := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		spot.BaseURL = baseURL
	}
	return &BinanceClient{
		id:      "binance",
		spot:    spot,
		limiter: newTokenBucket(ratePerSecond),
		cache:   newQuoteCache(0),
	}
}

func (c *BinanceClient) ID() string                { return c.id }
func (c *BinanceClient) Class() domain.SourceClass { return domain.SourceClassCEX }

// binanceSymbol converts "SOL/USDC" to "SOLUSDC".
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// Quote fetches 24h ticker stats for symbol.
func (c *BinanceClient) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := c.cache.get(symbol); ok {
		return q, nil
	}
	if err := c.limiter.take(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	stats, err := c.spot.NewListPriceChangeStatsService().
		Symbol(binanceSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance: %v", domain.ErrUnavailable, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: binance has no ticker %s", domain.ErrUnavailable, symbol)
	}
	st := stats[0]

	price, err := strconv.ParseFloat(st.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: binance price %q: %v", domain.ErrParse, st.LastPrice, err)
	}
	volume, _ := strconv.ParseFloat(st.QuoteVolume, 64)

	q := &domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Volume24h: volume,
		Timestamp: time.Now(),
		SourceID:  c.id,
		Class:     c.Class(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if bid, err := strconv.ParseFloat(st.BidPrice, 64); err == nil && bid > 0 {
		q.Bid = &bid
	}
	if ask, err := strconv.ParseFloat(st.AskPrice, 64); err == nil && ask > 0 {
		q.Ask = &ask
	}

	c.cache.put(symbol, q)
	return q, nil
}

var _ Client = (*BinanceClient)(nil)
