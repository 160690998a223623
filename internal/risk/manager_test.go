package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/config"
	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// fakeBook stubs the strategy manager surface risk depends on.
type fakeBook struct {
	losses    map[string]int
	cooldowns map[string]time.Time
}

func newFakeBook() *fakeBook {
	return &fakeBook{losses: map[string]int{}, cooldowns: map[string]time.Time{}}
}

func (b *fakeBook) LossesInRow(id string) int { return b.losses[id] }

func (b *fakeBook) SetCooldown(id string, until time.Time) { b.cooldowns[id] = until }

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		GlobalMaxExposure:      1000,
		MaxDailyLoss:           500,
		MaxDrawdown:            0.2,
		MaxPositions:           5,
		MaxExposurePerTokenPct: 0.5,
		MaxPriceImpactPct:      0.03,
		PositionSizingMethod:   "percentage",
		PositionSizePct:        0.02,
		TargetVolatility:       0.05,
		MinPositionSize:        10,
		MaxPositionSize:        500,
		StopLossPct:            0.10,
		TakeProfitPct:          0.25,
		MaxSlippageBps:         300,
		ConsecutiveLossLimit:   5,
		AIRiskWeight:           0.4,
	}
}

func buySignal(symbol string, size float64) *domain.Signal {
	return &domain.Signal{
		StrategyID:    "pumpfun_sniping",
		Symbol:        symbol,
		Action:        domain.ActionBuy,
		Strength:      0.9,
		SuggestedSize: size,
		Price:         1.0,
		PoolLiquidity: 100_000,
		CreatedAt:     time.UnixMilli(1700000000000),
	}
}

func openPosition(m *Manager, id, symbol string, size, entry float64) {
	m.AddPosition(&domain.Position{
		ID:         id,
		Symbol:     symbol,
		Side:       domain.SideLong,
		Size:       size,
		EntryPrice: entry,
		StrategyID: "pumpfun_sniping",
		Status:     domain.PositionOpen,
	})
	m.MarkPosition(id, entry)
}

func TestEvaluate_AcceptsAndReserves(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.True(t, d.Accepted())

	// percentage sizing: 2% of 10k equity = 200 notional at price 1.0.
	assert.InDelta(t, 200.0, d.SizedQuantity*d.Signal.Price, 1e-9)
	require.NotNil(t, d.StopPrice)
	require.NotNil(t, d.TakePrice)
	// pumpfun overrides: 15% stop, 50% take.
	assert.InDelta(t, 0.85, *d.StopPrice, 1e-9)
	assert.InDelta(t, 1.50, *d.TakePrice, 1e-9)

	assert.InDelta(t, 200.0, m.ReservedFor(d.DecisionID), 1e-9)
	assert.InDelta(t, 9_800.0, m.Snapshot().AvailableCash, 1e-9)
}

func TestEvaluate_ReservationIdempotentPerDecision(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	sig := buySignal("TKN1/SOL", 100)
	d1 := m.Evaluate(sig, nil)
	d2 := m.Evaluate(sig, nil)

	require.True(t, d1.Accepted())
	require.True(t, d2.Accepted())
	assert.Equal(t, d1.DecisionID, d2.DecisionID)
	// Only one reservation despite two evaluations.
	assert.InDelta(t, 9_800.0, m.Snapshot().AvailableCash, 1e-9)
}

func TestEvaluate_GlobalExposureCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxExposurePerTokenPct = 1.0 // isolate the global check
	m := NewManager(cfg, 10_000, newFakeBook(), zap.NewNop())

	openPosition(m, "p1", "OTHER/SOL", 900, 1.0)

	d := m.Evaluate(buySignal("TKN1/SOL", 200), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeOverExposure, d.RejectReason)
}

func TestEvaluate_PerTokenExposureCap(t *testing.T) {
	m := NewManager(testConfig(), 1_000, newFakeBook(), zap.NewNop())

	// Token cap = 50% of ~1000 equity = ~500.
	d := m.Evaluate(buySignal("TKN1/SOL", 600), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeOverExposure, d.RejectReason)
}

func TestEvaluate_LiquiditySanity(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	sig := buySignal("TKN1/SOL", 400)
	sig.PoolLiquidity = 1_000 // 3% cap = 30

	d := m.Evaluate(sig, nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeLiquidityShallow, d.RejectReason)
}

func TestEvaluate_HaltShortCircuits(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())
	m.Halt("manual")

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeEngineHalted, d.RejectReason)

	m.Resume()
	d = m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	assert.True(t, d.Accepted())
}

func TestEvaluate_DailyLossHalts(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	openPosition(m, "p1", "TKN2/SOL", 600, 1.0)
	_, ok := m.ClosePosition("p1", 0.0) // lose 600, beyond the 500 limit
	require.True(t, ok)

	assert.True(t, m.Halted())

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeEngineHalted, d.RejectReason)
}

func TestEvaluate_ConsecutiveLossesCoolOff(t *testing.T) {
	book := newFakeBook()
	book.losses["pumpfun_sniping"] = 5
	m := NewManager(testConfig(), 10_000, book, zap.NewNop())

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeStrategyCoolingOff, d.RejectReason)

	until, ok := book.cooldowns["pumpfun_sniping"]
	require.True(t, ok)
	assert.True(t, until.After(time.Now().Add(29*time.Minute)))
}

func TestEvaluate_TooManyPositions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 1
	m := NewManager(cfg, 10_000, newFakeBook(), zap.NewNop())

	openPosition(m, "p1", "OTHER/SOL", 50, 1.0)

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeTooManyPositions, d.RejectReason)
}

func TestEvaluate_GraduationHalvesTakeDistance(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	sig := buySignal("TKN1/SOL", 100)
	sig.Metadata = map[string]string{"graduation_imminent": "true"}

	d := m.Evaluate(sig, nil)
	require.True(t, d.Accepted())
	assert.True(t, d.GraduationNear)
	// take distance 50% -> 25%.
	assert.InDelta(t, 1.25, *d.TakePrice, 1e-9)
}

func TestEvaluate_VolatilityAdjustedSizing(t *testing.T) {
	cfg := testConfig()
	cfg.PositionSizingMethod = "volatility_adjusted"
	m := NewManager(cfg, 10_000, newFakeBook(), zap.NewNop())

	calm := buySignal("TKN1/SOL", 100)
	calm.Volatility = 0.05 // at target: full size
	d := m.Evaluate(calm, nil)
	require.True(t, d.Accepted())
	assert.InDelta(t, 200.0, d.SizedQuantity*calm.Price, 1e-9)

	wild := buySignal("TKN2/SOL", 100)
	wild.Volatility = 0.50 // 10x target: clamped to 0.25 factor
	d = m.Evaluate(wild, nil)
	require.True(t, d.Accepted())
	assert.InDelta(t, 50.0, d.SizedQuantity*wild.Price, 1e-9)
}

func TestEvaluate_EnrichmentRaisesRiskAndScalesSize(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	base := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.True(t, base.Accepted())

	hot := &domain.SentimentSummary{Action: "BUY", Confidence: 0.9, RiskScore: 0.8}
	d := m.Evaluate(buySignal("TKN2/SOL", 100), hot)
	require.True(t, d.Accepted())
	assert.Greater(t, d.RiskScore, base.RiskScore)

	timid := &domain.SentimentSummary{Action: "BUY", Confidence: 0.3, RiskScore: 0.2}
	d = m.Evaluate(buySignal("TKN3/SOL", 100), timid)
	require.True(t, d.Accepted())
	// size scaled by max(0.3, 0.2) = 0.3.
	assert.InDelta(t, 60.0, d.SizedQuantity*d.Signal.Price, 1e-9)
}

func TestEvaluate_EnrichmentRejectMaxesAdditiveTerm(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	veto := &domain.SentimentSummary{Action: "REJECT", Confidence: 0.95, RiskScore: 0.1}
	d := m.Evaluate(buySignal("TKN1/SOL", 100), veto)
	require.True(t, d.Accepted())
	assert.GreaterOrEqual(t, d.RiskScore, 0.4)
}

func TestClosePosition_BooksRealizedPnL(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	openPosition(m, "p1", "TKN1/SOL", 100, 1.0)

	close, ok := m.ClosePosition("p1", 1.2)
	require.True(t, ok)
	assert.InDelta(t, 20.0, close.RealizedPnL, 1e-9)

	snap := m.Snapshot()
	assert.InDelta(t, 20.0, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 20.0, snap.DailyPnL, 1e-9)
	assert.Equal(t, 0, snap.OpenPositionCount())

	// Double close is a no-op.
	_, ok = m.ClosePosition("p1", 1.3)
	assert.False(t, ok)
}

func TestConfirmAndRelease(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	d := m.Evaluate(buySignal("TKN1/SOL", 100), nil)
	require.True(t, d.Accepted())
	reserved := m.ReservedFor(d.DecisionID)
	require.Greater(t, reserved, 0.0)

	m.Release(d.DecisionID)
	assert.Zero(t, m.ReservedFor(d.DecisionID))
	assert.InDelta(t, 10_000.0, m.Snapshot().AvailableCash, 1e-9)

	d2 := m.Evaluate(buySignal("TKN2/SOL", 100), nil)
	require.True(t, d2.Accepted())
	m.Confirm(d2.DecisionID)
	snap := m.Snapshot()
	assert.InDelta(t, 9_800.0, snap.CashBalance, 1e-9)
	assert.InDelta(t, 9_800.0, snap.AvailableCash, 1e-9)
}

func TestEvaluateClose_LighterPath(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())
	m.Halt("drawdown breach")

	pos := &domain.Position{
		ID:         "p1",
		Symbol:     "TKN1/SOL",
		Side:       domain.SideLong,
		Size:       100,
		EntryPrice: 1.0,
		StrategyID: "pumpfun_sniping",
		Status:     domain.PositionOpen,
	}

	// Closing is permitted even while halted.
	d := m.EvaluateClose(pos, domain.CloseReasonStop, 0.84)
	require.True(t, d.Accepted())
	assert.Equal(t, "p1", d.CloseOf)
	assert.Equal(t, domain.CloseReasonStop, d.CloseReason)
	assert.Equal(t, 100.0, d.SizedQuantity)
}

func TestDrawdownHaltOnMark(t *testing.T) {
	m := NewManager(testConfig(), 10_000, newFakeBook(), zap.NewNop())

	openPosition(m, "p1", "TKN1/SOL", 5_000, 1.0)
	require.False(t, m.Halted())

	// Price collapses 80%: equity drops well past the 20% drawdown cap.
	m.MarkPosition("p1", 0.2)
	assert.True(t, m.Halted())

	d := m.Evaluate(buySignal("TKN2/SOL", 100), nil)
	require.False(t, d.Accepted())
	assert.Equal(t, domain.CodeEngineHalted, d.RejectReason)
}
