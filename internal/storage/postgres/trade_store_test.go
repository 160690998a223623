package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/storage"
)

// setupTestDB starts a throwaway PostgreSQL container.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func sampleTrade(id string, at time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:     id,
		DecisionID:  "dec-" + id,
		PositionID:  "pos-" + id,
		Symbol:      "TKN1/SOL",
		StrategyID:  "pumpfun_sniping",
		Action:      domain.ActionBuy,
		Quantity:    100,
		Price:       1.25,
		FeeLamports: 5000,
		Signature:   "sig-" + id,
		ExecutedAt:  at,
	}
}

func TestTradeStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewTradeStore(ctx, pool)
	require.NoError(t, err)

	now := time.UnixMilli(1700000000000).UTC()
	require.NoError(t, store.Insert(ctx, sampleTrade("t1", now)))

	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "TKN1/SOL", got.Symbol)
	assert.Equal(t, uint64(5000), got.FeeLamports)
	assert.Equal(t, now, got.ExecutedAt)

	// Duplicate insert maps the unique violation.
	assert.ErrorIs(t, store.Insert(ctx, sampleTrade("t1", now)), storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_Queries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewTradeStore(ctx, pool)
	require.NoError(t, err)

	base := time.UnixMilli(1700000000000).UTC()
	require.NoError(t, store.Insert(ctx, sampleTrade("t1", base)))
	require.NoError(t, store.Insert(ctx, sampleTrade("t2", base.Add(time.Minute))))

	bySymbol, err := store.GetBySymbol(ctx, "TKN1/SOL")
	require.NoError(t, err)
	require.Len(t, bySymbol, 2)
	assert.Equal(t, "t2", bySymbol[0].TradeID, "newest first")

	byRange, err := store.GetByTimeRange(ctx, base.UnixMilli(), base.UnixMilli())
	require.NoError(t, err)
	require.Len(t, byRange, 1)
	assert.Equal(t, "t1", byRange[0].TradeID)
}
