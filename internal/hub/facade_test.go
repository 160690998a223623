package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	return New(NewMemoryStore(), 5)
}

func sampleOpportunity(addr string, at time.Time) *domain.OpportunityRecord {
	return &domain.OpportunityRecord{
		Candidate: domain.OpportunityCandidate{
			Address:      addr,
			Symbol:       "TKN1/SOL",
			SourceID:     "pumpfun",
			LiquidityUSD: 12_000,
		},
		DiscoveredAt: at,
		Status:       domain.OpportunityRaw,
		LastEventAt:  at,
	}
}

func TestInsertOpportunity_Idempotent(t *testing.T) {
	h := testHub(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1700000000000).UTC()

	created, err := h.InsertOpportunity(ctx, sampleOpportunity("MintA", t0))
	require.NoError(t, err)
	assert.True(t, created)

	// Second insert must not duplicate, only refresh last_event_at.
	t1 := t0.Add(time.Minute)
	created, err = h.InsertOpportunity(ctx, sampleOpportunity("MintA", t1))
	require.NoError(t, err)
	assert.False(t, created)

	addrs, err := h.RawOpportunities(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"MintA"}, addrs)

	rec, err := h.GetOpportunity(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, t0, rec.DiscoveredAt)
	assert.Equal(t, t1, rec.LastEventAt)
	assert.Equal(t, domain.OpportunityRaw, rec.Status)
}

func TestOpportunityStatusTransition(t *testing.T) {
	h := testHub(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1700000000000).UTC()

	_, err := h.InsertOpportunity(ctx, sampleOpportunity("MintB", t0))
	require.NoError(t, err)

	require.NoError(t, h.UpdateOpportunityStatus(ctx, "MintB", domain.OpportunityTraded, t0.Add(time.Second)))

	rec, err := h.GetOpportunity(ctx, "MintB")
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityTraded, rec.Status)
}

func TestPositionSetMaintenance(t *testing.T) {
	h := testHub(t)
	ctx := context.Background()

	pos := &domain.Position{
		ID:         "pos-1",
		Symbol:     "TKN1/SOL",
		Side:       domain.SideLong,
		Size:       100,
		EntryPrice: 1.0,
		Status:     domain.PositionOpen,
	}
	require.NoError(t, h.SavePosition(ctx, pos))

	open, err := h.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pos-1", open[0].ID)

	pos.Status = domain.PositionClosed
	require.NoError(t, h.SavePosition(ctx, pos))

	open, err = h.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Closed record remains readable.
	got, err := h.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, got.Status)
}

func TestEventLogCapped(t *testing.T) {
	h := testHub(t) // cap 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, h.AppendEvent(ctx, &domain.Event{
			ID:   string(rune('a' + i)),
			Type: domain.EventSignalGenerated,
		}))
	}

	events, err := h.RecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	// Newest retained, oldest dropped.
	assert.Equal(t, "d", events[0].ID)
	assert.Equal(t, "h", events[4].ID)
}

func TestAcquireInflight_AtMostOnce(t *testing.T) {
	h := testHub(t)
	ctx := context.Background()

	won, err := h.AcquireInflight(ctx, "dec-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = h.AcquireInflight(ctx, "dec-1")
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, h.ReleaseInflight(ctx, "dec-1"))
	won, err = h.AcquireInflight(ctx, "dec-1")
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSubmittedDecisions(t *testing.T) {
	h := testHub(t)
	ctx := context.Background()

	require.NoError(t, h.SaveDecisionRecord(ctx, &DecisionRecord{DecisionID: "d1", Status: "submitted"}))
	require.NoError(t, h.SaveDecisionRecord(ctx, &DecisionRecord{DecisionID: "d2", Status: "filled"}))
	require.NoError(t, h.SaveDecisionRecord(ctx, &DecisionRecord{DecisionID: "d3", Status: "submitted"}))

	recs, err := h.SubmittedDecisions(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.DecisionID)
	}
	assert.ElementsMatch(t, []string{"d1", "d3"}, ids)
}

func TestLoadBotStatus_NotFound(t *testing.T) {
	h := testHub(t)
	_, err := h.LoadBotStatus(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}
