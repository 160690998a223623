package venue

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

func pumpfunServer(t *testing.T, mcap float64, complete bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"mint": "MintXYZ",
			"symbol": "WIF2",
			"usd_market_cap": %f,
			"price_usd": 0.000042,
			"volume_24h": 18000,
			"created_timestamp": %d,
			"creator": "CreatorPubkey",
			"holder_count": 42,
			"complete": %t
		}`, mcap, time.Now().Add(-2*time.Hour).UnixMilli(), complete)
	}))
}

func TestPumpfunQuote(t *testing.T) {
	srv := pumpfunServer(t, 30_000, false)
	defer srv.Close()

	c := NewPumpfunClient(srv.URL, "", 100, time.Second, zap.NewNop())
	q, err := c.Quote(context.Background(), "MintXYZ")
	require.NoError(t, err)

	assert.Equal(t, 0.000042, q.Price)
	assert.Equal(t, 18000.0, q.Volume24h)
	assert.Equal(t, "pumpfun", q.SourceID)
	assert.Equal(t, domain.SourceClassLaunchpad, q.Class)
}

func TestPumpfunTokenMetadata(t *testing.T) {
	srv := pumpfunServer(t, 34_500, false)
	defer srv.Close()

	c := NewPumpfunClient(srv.URL, "", 100, time.Second, zap.NewNop())
	meta, err := c.TokenMetadata(context.Background(), "MintXYZ")
	require.NoError(t, err)

	require.NotNil(t, meta.MarketCap)
	assert.Equal(t, 34_500.0, *meta.MarketCap)
	require.NotNil(t, meta.BondingCurveProgress)
	assert.InDelta(t, 0.5, *meta.BondingCurveProgress, 0.001)
	require.NotNil(t, meta.AgeSeconds)
	assert.InDelta(t, 7200, *meta.AgeSeconds, 5)
	require.NotNil(t, meta.HolderCount)
	assert.Equal(t, 42, *meta.HolderCount)
	assert.False(t, meta.Flags.Graduated)
}

func TestPumpfunTokenMetadata_Graduated(t *testing.T) {
	srv := pumpfunServer(t, 120_000, true)
	defer srv.Close()

	c := NewPumpfunClient(srv.URL, "", 100, time.Second, zap.NewNop())
	meta, err := c.TokenMetadata(context.Background(), "MintXYZ")
	require.NoError(t, err)

	assert.True(t, meta.Flags.Graduated)
	require.NotNil(t, meta.BondingCurveProgress)
	assert.Equal(t, 1.0, *meta.BondingCurveProgress)
}

func TestPumpfunQuote_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPumpfunClient(srv.URL, "", 100, time.Second, zap.NewNop())
	_, err := c.Quote(context.Background(), "MintXYZ")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestRaydiumQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"name": "OTHER/SOL", "price": 2.0, "volume24h": 1, "liquidity": 1},
			{"name": "TKN1/SOL", "ammId": "Pool111", "price": 1.25, "volume24h": 50000, "liquidity": 40000, "feeBps": 25}
		]`)
	}))
	defer srv.Close()

	c := NewRaydiumClient(srv.URL, 100, time.Second)
	q, err := c.Quote(context.Background(), "TKN1/SOL")
	require.NoError(t, err)

	assert.Equal(t, 1.25, q.Price)
	assert.Equal(t, 50000.0, q.Volume24h)
	require.NotNil(t, q.Liquidity)
	assert.Equal(t, 40000.0, *q.Liquidity)
	assert.Equal(t, domain.SourceClassAMM, q.Class)
}

func TestRaydiumQuote_UnknownPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewRaydiumClient(srv.URL, 100, time.Second)
	_, err := c.Quote(context.Background(), "NOPE/SOL")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestJupiterQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "ids=MintXYZ")
		fmt.Fprint(w, `{"data": {"MintXYZ": {"id": "MintXYZ", "price": "0.99"}}}`)
	}))
	defer srv.Close()

	c := NewJupiterClient(srv.URL, 100, time.Second)
	q, err := c.Quote(context.Background(), "MintXYZ")
	require.NoError(t, err)
	assert.Equal(t, 0.99, q.Price)
	assert.Equal(t, domain.SourceClassAggregator, q.Class)
}

func TestJupiterQuote_CacheHitSkipsHTTP(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"data": {"M": {"id": "M", "price": "1.0"}}}`)
	}))
	defer srv.Close()

	c := NewJupiterClient(srv.URL, 100, time.Second)
	_, err := c.Quote(context.Background(), "M")
	require.NoError(t, err)
	_, err = c.Quote(context.Background(), "M")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMeteoraQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "TKN1-SOL",
			"current_price": "1.30",
			"trade_volume_24h": "25000",
			"liquidity": "60000",
			"bin_step": 20,
			"base_fee_percentage": "0.2"
		}`)
	}))
	defer srv.Close()

	c := NewMeteoraClient(srv.URL, 100, time.Second)
	q, err := c.Quote(context.Background(), "TKN1-SOL")
	require.NoError(t, err)
	assert.Equal(t, 1.30, q.Price)
	require.NotNil(t, q.Liquidity)
	assert.Equal(t, 60000.0, *q.Liquidity)
}

func TestHeliusQuote_Unavailable(t *testing.T) {
	c := NewHeliusClient(nil, nil, "prog", zap.NewNop())
	_, err := c.Quote(context.Background(), "SOL/USDC")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestContainsPoolInit(t *testing.T) {
	assert.True(t, containsPoolInit([]string{"Program log: initialize2: InitializeInstruction2"}))
	assert.False(t, containsPoolInit([]string{"Program log: swap"}))
}
