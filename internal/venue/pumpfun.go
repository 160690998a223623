package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Tokens graduate off the bonding curve around this market cap.
const graduationMarketCapUSD = 69_000.0

// PumpfunClient reads bonding-curve token state from the pump.fun API and
// streams new-token events over its WebSocket feed.
type PumpfunClient struct {
	id      string
	baseURL string
	wsURL   string
	client  *http.Client
	limiter *tokenBucket
	cache   *quoteCache
	log     *zap.Logger
}

// NewPumpfunClient creates a pump.fun launchpad client.
func NewPumpfunClient(baseURL, wsURL string, ratePerSecond float64, timeout time.Duration, log *zap.Logger) *PumpfunClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PumpfunClient{
		id:      "pumpfun",
		baseURL: baseURL,
		wsURL:   wsURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newTokenBucket(ratePerSecond),
		cache:   newQuoteCache(0),
		log:     log,
	}
}

func (c *PumpfunClient) ID() string                { return c.id }
func (c *PumpfunClient) Class() domain.SourceClass { return domain.SourceClassLaunchpad }

type pumpfunCoin struct {
	Mint             string  `json:"mint"`
	Symbol           string  `json:"symbol"`
	USDMarketCap     float64 `json:"usd_market_cap"`
	PriceUSD         float64 `json:"price_usd"`
	Volume24h        float64 `json:"volume_24h"`
	CreatedTimestamp int64   `json:"created_timestamp"` // ms
	Creator          string  `json:"creator"`
	HolderCount      *int    `json:"holder_count"`
	Complete         bool    `json:"complete"`
	VirtualSol       float64 `json:"virtual_sol_reserves"`
}

// Quote fetches the bonding-curve price for a mint.
func (c *PumpfunClient) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := c.cache.get(symbol); ok {
		return q, nil
	}

	coin, latency, err := c.fetchCoin(ctx, symbol)
	if err != nil {
		return nil, err
	}

	q := &domain.Quote{
		Symbol:    symbol,
		Price:     coin.PriceUSD,
		Volume24h: coin.Volume24h,
		Timestamp: time.Now(),
		SourceID:  c.id,
		Class:     c.Class(),
		LatencyMs: latency.Milliseconds(),
	}
	c.cache.put(symbol, q)
	return q, nil
}

// TokenMetadata returns bonding-curve token state. Unknown fields stay nil.
func (c *PumpfunClient) TokenMetadata(ctx context.Context, address string) (*domain.TokenMetadata, error) {
	coin, _, err := c.fetchCoin(ctx, address)
	if err != nil {
		return nil, err
	}

	meta := &domain.TokenMetadata{
		Address: coin.Mint,
		Symbol:  coin.Symbol,
		Flags:   domain.TokenFlags{Graduated: coin.Complete},
	}
	if coin.USDMarketCap > 0 {
		mcap := coin.USDMarketCap
		meta.MarketCap = &mcap
		progress := mcap / graduationMarketCapUSD
		if coin.Complete || progress > 1 {
			progress = 1
		}
		meta.BondingCurveProgress = &progress
	}
	if coin.CreatedTimestamp > 0 {
		age := time.Now().UnixMilli()/1000 - coin.CreatedTimestamp/1000
		meta.AgeSeconds = &age
	}
	if coin.Creator != "" {
		creator := coin.Creator
		meta.CreatorID = &creator
	}
	meta.HolderCount = coin.HolderCount
	return meta, nil
}

func (c *PumpfunClient) fetchCoin(ctx context.Context, mint string) (*pumpfunCoin, time.Duration, error) {
	if err := c.limiter.take(ctx); err != nil {
		return nil, 0, err
	}

	start := time.Now()
	u := fmt.Sprintf("%s/coins/%s", c.baseURL, url.PathEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: pumpfun: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, fmt.Errorf("%w: pumpfun", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: pumpfun status %d", domain.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: pumpfun: %v", domain.ErrUnavailable, err)
	}

	var coin pumpfunCoin
	if err := json.Unmarshal(body, &coin); err != nil {
		return nil, 0, fmt.Errorf("%w: pumpfun: %v", domain.ErrParse, err)
	}
	return &coin, time.Since(start), nil
}

type pumpfunWSEvent struct {
	TxType       string  `json:"txType"` // "create" on new tokens
	Mint         string  `json:"mint"`
	Symbol       string  `json:"symbol"`
	TraderPubkey string  `json:"traderPublicKey"`
	MarketCapSol float64 `json:"marketCapSol"`
	SolPriceUSD  float64 `json:"solPriceUsd"`
}

// Subscribe streams new-token creations. The connection reconnects with
// jittered exponential backoff until ctx is cancelled.
func (c *PumpfunClient) Subscribe(ctx context.Context, _ []string) (<-chan domain.VenueEvent, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("%w: pumpfun websocket not configured", domain.ErrUnavailable)
	}

	out := make(chan domain.VenueEvent, 256)
	go c.streamLoop(ctx, out)
	return out, nil
}

func (c *PumpfunClient) streamLoop(ctx context.Context, out chan<- domain.VenueEvent) {
	defer close(out)

	boff := &backoff.Backoff{Min: time.Second, Max: 60 * time.Second, Factor: 2, Jitter: true}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			c.log.Warn("pumpfun dial failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(boff.Duration()):
			}
			continue
		}

		sub := map[string]string{"method": "subscribeNewToken"}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			continue
		}
		boff.Reset()

		c.readEvents(ctx, conn, out)
		conn.Close()
	}
}

func (c *PumpfunClient) readEvents(ctx context.Context, conn *websocket.Conn, out chan<- domain.VenueEvent) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("pumpfun stream closed", zap.Error(err))
			return
		}

		var ev pumpfunWSEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.TxType != "create" {
			continue
		}

		event := domain.VenueEvent{
			Kind:     domain.VenueEventNewToken,
			SourceID: c.id,
			NewToken: &domain.NewTokenEvent{
				Mint:       ev.Mint,
				Symbol:     ev.Symbol,
				Creator:    ev.TraderPubkey,
				MarketCap:  ev.MarketCapSol * ev.SolPriceUSD,
				DetectedAt: time.Now(),
			},
		}

		// New-token events must not be dropped; block until delivered.
		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
	}
}

var (
	_ Client           = (*PumpfunClient)(nil)
	_ Streamer         = (*PumpfunClient)(nil)
	_ MetadataProvider = (*PumpfunClient)(nil)
)
