package aggregator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
)

// stubClient serves a fixed quote and counts calls.
type stubClient struct {
	id    string
	class domain.SourceClass
	q     *domain.Quote
	err   error
	calls atomic.Int32
}

func (s *stubClient) ID() string                { return s.id }
func (s *stubClient) Class() domain.SourceClass { return s.class }

func (s *stubClient) Quote(context.Context, string) (*domain.Quote, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	q := *s.q
	return &q, nil
}

func stub(id string, class domain.SourceClass, price float64, ts time.Time) *stubClient {
	return &stubClient{
		id:    id,
		class: class,
		q: &domain.Quote{
			Symbol:    "SOL/USDC",
			Price:     price,
			Timestamp: ts,
			SourceID:  id,
			Class:     class,
		},
	}
}

func TestRequestView_FusesAndCaches(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a := stub("binance", domain.SourceClassCEX, 100, now)
	b := stub("raydium", domain.SourceClassAMM, 101, now)

	agg := New(Options{Clients: []venue.Client{a, b}})
	agg.now = func() time.Time { return now }

	view, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 2, view.SourceCount)
	assert.Equal(t, "binance", view.PrimarySourceID)

	// Second read inside the TTL serves the cache.
	now = now.Add(2 * time.Second)
	_, err = agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.calls.Load())

	// Past the TTL the view is recomputed.
	now = now.Add(4 * time.Second)
	_, err = agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestRequestView_DropsStaleQuote(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	fresh := stub("binance", domain.SourceClassCEX, 100, now)
	stale := stub("pumpfun", domain.SourceClassLaunchpad, 150, now.Add(-30*time.Second))

	agg := New(Options{Clients: []venue.Client{fresh, stale}})
	agg.now = func() time.Time { return now }

	view, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, view.SourceCount)
	assert.Equal(t, 100.0, view.ConsensusPrice)
}

func TestRequestView_AllStale(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	stale := stub("binance", domain.SourceClassCEX, 100, now.Add(-time.Minute))

	agg := New(Options{Clients: []venue.Client{stale}})
	agg.now = func() time.Time { return now }

	_, err := agg.RequestView(context.Background(), "SOL/USDC")
	assert.ErrorIs(t, err, domain.ErrAllStale)
}

func TestRequestView_NoSources(t *testing.T) {
	failing := &stubClient{id: "binance", class: domain.SourceClassCEX, err: domain.ErrUnavailable}

	agg := New(Options{Clients: []venue.Client{failing}})

	_, err := agg.RequestView(context.Background(), "SOL/USDC")
	assert.ErrorIs(t, err, domain.ErrNoSources)
}

func TestRequestView_FailingSourceDroppedNotFatal(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	ok := stub("binance", domain.SourceClassCEX, 100, now)
	failing := &stubClient{id: "raydium", class: domain.SourceClassAMM, err: domain.ErrRateLimited}

	agg := New(Options{Clients: []venue.Client{ok, failing}})
	agg.now = func() time.Time { return now }

	view, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, view.SourceCount)
}

func TestOnEvent_InvalidatesCacheAndContributes(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	puller := stub("binance", domain.SourceClassCEX, 100, now)

	agg := New(Options{Clients: []venue.Client{puller}})
	agg.now = func() time.Time { return now }

	view, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, view.SourceCount)

	// Push a second source's quote; cache must invalidate.
	agg.OnEvent(domain.VenueEvent{
		Kind:     domain.VenueEventQuote,
		SourceID: "raydium",
		Quote: &domain.Quote{
			Symbol:    "SOL/USDC",
			Price:     100.4,
			Timestamp: now,
			SourceID:  "raydium",
			Class:     domain.SourceClassAMM,
		},
	})

	view, err = agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 2, view.SourceCount)
}

func TestRequestView_PublishesSnapshot(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	h := hub.New(hub.NewMemoryStore(), 10)

	agg := New(Options{
		Clients: []venue.Client{stub("binance", domain.SourceClassCEX, 100, now)},
		Hub:     h,
	})
	agg.now = func() time.Time { return now }

	_, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)

	raw, err := h.Store().Get(context.Background(), "view:SOL/USDC")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Symbol":"SOL/USDC"`)
}

func TestWeightOverride(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a := stub("binance", domain.SourceClassCEX, 100, now)
	b := stub("raydium", domain.SourceClassAMM, 200, now)

	// Demote binance below raydium: raydium becomes primary.
	agg := New(Options{
		Clients: []venue.Client{a, b},
		Weights: map[string]float64{"binance": 0.1},
	})
	agg.now = func() time.Time { return now }

	view, err := agg.RequestView(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, "raydium", view.PrimarySourceID)
}
