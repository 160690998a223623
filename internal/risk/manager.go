// Package risk gates strategy signals: it owns the portfolio, computes
// position sizes, attaches stop/take levels and enforces the engine's
// circuit breakers.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/config"
	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/idhash"
)

// StrategyBook is the slice of the strategy manager risk needs.
type StrategyBook interface {
	LossesInRow(strategyID string) int
	SetCooldown(strategyID string, until time.Time)
}

// Per-strategy stop/take overrides.
type stopTake struct {
	stopPct float64
	takePct float64
}

var strategyStopTake = map[string]stopTake{
	"pumpfun_sniping":   {stopPct: 0.15, takePct: 0.50},
	"liquidity_sniping": {stopPct: 0.10, takePct: 0.25},
}

// Cooling-off imposed after a losing streak.
const coolingOffPeriod = 30 * time.Minute

// Manager is the single entry point for signal gating. It is the sole
// owner of the portfolio; everything else reads snapshots.
type Manager struct {
	mu         sync.Mutex
	cfg        config.RiskConfig
	portfolio  *domain.Portfolio
	strategies StrategyBook
	halted     bool
	haltReason string

	// reservations maps decision id to reserved notional, making
	// reservation idempotent per decision.
	reservations map[string]float64

	aiWeight float64
	log      *zap.Logger
	now      func() time.Time
}

// NewManager creates the risk manager with an initial cash balance.
func NewManager(cfg config.RiskConfig, initialCash float64, strategies StrategyBook, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	aiWeight := cfg.AIRiskWeight
	if aiWeight <= 0 {
		aiWeight = 0.4
	}
	return &Manager{
		cfg:          cfg,
		portfolio:    domain.NewPortfolio(initialCash),
		strategies:   strategies,
		reservations: make(map[string]float64),
		aiWeight:     aiWeight,
		log:          log,
		now:          time.Now,
	}
}

// Halted reports whether the engine is halted.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// HaltReason returns why the engine halted, empty while running.
func (m *Manager) HaltReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haltReason
}

// Halt stops new positions from opening. Closes stay permitted.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haltLocked(reason)
}

func (m *Manager) haltLocked(reason string) {
	if !m.halted {
		m.halted = true
		m.haltReason = reason
		m.log.Error("engine halted", zap.String("reason", reason))
	}
}

// Resume lifts a halt.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.haltReason = ""
	m.log.Info("engine resumed")
}

// Snapshot returns a deep copy of the portfolio.
func (m *Manager) Snapshot() *domain.Portfolio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolio.Snapshot()
}

// Evaluate gates a signal through the sequential checks and, on accept,
// reserves cash for the sized order. enrich may be nil.
func (m *Manager) Evaluate(sig *domain.Signal, enrich *domain.SentimentSummary) *domain.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	decision := &domain.Decision{
		DecisionID:  idhash.ComputeDecisionID(sig),
		Signal:      sig,
		EvaluatedAt: m.now(),
	}

	reject := func(code domain.ErrorCode, detail string) *domain.Decision {
		decision.Verdict = domain.VerdictReject
		decision.RejectReason = code
		decision.RejectDetail = detail
		m.log.Info("signal rejected",
			zap.String("strategy", sig.StrategyID),
			zap.String("symbol", sig.Symbol),
			zap.String("reason", string(code)))
		return decision
	}

	// 1. Halt check.
	if m.halted {
		return reject(domain.CodeEngineHalted, m.haltReason)
	}

	// 2. Daily loss check.
	if m.portfolio.DailyPnL <= -m.cfg.MaxDailyLoss {
		m.haltLocked(fmt.Sprintf("daily loss %.2f breached limit %.2f",
			m.portfolio.DailyPnL, m.cfg.MaxDailyLoss))
		return reject(domain.CodeDailyLossExceeded,
			fmt.Sprintf("daily pnl %.2f", m.portfolio.DailyPnL))
	}

	// 3. Drawdown check.
	if m.portfolio.CurrentDrawdown >= m.cfg.MaxDrawdown {
		m.haltLocked(fmt.Sprintf("drawdown %.4f breached limit %.4f",
			m.portfolio.CurrentDrawdown, m.cfg.MaxDrawdown))
		return reject(domain.CodeMaxDrawdown,
			fmt.Sprintf("drawdown %.4f", m.portfolio.CurrentDrawdown))
	}

	// 4. Consecutive loss check.
	if m.strategies != nil && m.strategies.LossesInRow(sig.StrategyID) >= m.cfg.ConsecutiveLossLimit {
		m.strategies.SetCooldown(sig.StrategyID, m.now().Add(coolingOffPeriod))
		return reject(domain.CodeStrategyCoolingOff,
			fmt.Sprintf("%d consecutive losses", m.cfg.ConsecutiveLossLimit))
	}

	// 5. Position count check.
	if m.portfolio.OpenPositionCount() >= m.cfg.MaxPositions {
		return reject(domain.CodeTooManyPositions,
			fmt.Sprintf("%d open positions", m.portfolio.OpenPositionCount()))
	}

	proposed := sig.SuggestedSize
	equity := m.portfolio.Equity()

	// 6. Per-token exposure.
	tokenCap := m.cfg.MaxExposurePerTokenPct * equity
	if m.portfolio.SymbolNotional(sig.Symbol)+proposed > tokenCap {
		return reject(domain.CodeOverExposure,
			fmt.Sprintf("token exposure would exceed %.2f", tokenCap))
	}

	// 7. Global exposure.
	if m.portfolio.OpenNotional()+proposed > m.cfg.GlobalMaxExposure {
		return reject(domain.CodeOverExposure,
			fmt.Sprintf("global exposure would exceed %.2f", m.cfg.GlobalMaxExposure))
	}

	// 8. Liquidity sanity.
	if sig.PoolLiquidity > 0 && proposed > m.cfg.MaxPriceImpactPct*sig.PoolLiquidity {
		return reject(domain.CodeLiquidityShallow,
			fmt.Sprintf("size %.2f exceeds %.1f%% of %.2f liquidity",
				proposed, m.cfg.MaxPriceImpactPct*100, sig.PoolLiquidity))
	}

	// 9. Sizing.
	notional := m.sizeNotional(sig, equity)
	// Keep the exposure invariants intact even when bounds push the
	// sized notional above the proposed one.
	notional = math.Min(notional, tokenCap-m.portfolio.SymbolNotional(sig.Symbol))
	notional = math.Min(notional, m.cfg.GlobalMaxExposure-m.portfolio.OpenNotional())
	if notional > m.portfolio.AvailableCash {
		notional = m.portfolio.AvailableCash
	}
	if notional < m.cfg.MinPositionSize {
		return reject(domain.CodeOverExposure,
			fmt.Sprintf("sized notional %.2f below minimum %.2f", notional, m.cfg.MinPositionSize))
	}

	riskScore := m.riskScore(sig)
	if enrich != nil {
		riskScore = m.applyEnrichment(enrich, riskScore, &notional)
	}

	// 10. Stop / take.
	stopPct, takePct := m.stopTakeFor(sig.StrategyID)
	if sig.Metadata["graduation_imminent"] == "true" {
		takePct /= 2
		decision.GraduationNear = true
	}
	stop := sig.Price * (1 - stopPct)
	take := sig.Price * (1 + takePct)

	decision.Verdict = domain.VerdictAccept
	decision.SizedQuantity = notional / sig.Price
	decision.StopPrice = &stop
	decision.TakePrice = &take
	decision.RiskScore = riskScore

	// Reserve the cash; execution confirms or releases later.
	if _, exists := m.reservations[decision.DecisionID]; !exists {
		m.reservations[decision.DecisionID] = notional
		m.portfolio.AvailableCash -= notional
	}

	m.log.Info("signal accepted",
		zap.String("strategy", sig.StrategyID),
		zap.String("symbol", sig.Symbol),
		zap.Float64("notional", notional),
		zap.Float64("risk_score", riskScore))
	return decision
}

// sizeNotional applies the configured sizing method and bounds.
func (m *Manager) sizeNotional(sig *domain.Signal, equity float64) float64 {
	var notional float64
	switch m.cfg.PositionSizingMethod {
	case "fixed":
		notional = m.cfg.FixedPositionSize
	case "percentage":
		notional = m.cfg.PositionSizePct * equity
	case "volatility_adjusted":
		factor := 1.0
		if sig.Volatility > 0 && m.cfg.TargetVolatility > 0 {
			factor = math.Max(0.25, math.Min(1.0, m.cfg.TargetVolatility/sig.Volatility))
		}
		notional = m.cfg.PositionSizePct * equity * factor
	default:
		notional = sig.SuggestedSize
	}

	notional = math.Max(m.cfg.MinPositionSize, math.Min(m.cfg.MaxPositionSize, notional))
	return notional
}

// riskScore grades the trade 0 (benign) to 1 (hot).
func (m *Manager) riskScore(sig *domain.Signal) float64 {
	score := (1 - sig.Strength) * 0.3

	equity := m.portfolio.Equity()
	if equity > 0 {
		score += m.portfolio.OpenNotional() / equity * 0.3
	}
	if m.cfg.MaxDrawdown > 0 {
		score += m.portfolio.CurrentDrawdown / m.cfg.MaxDrawdown * 0.2
	}
	if m.cfg.MaxDailyLoss > 0 {
		score += math.Max(0, -m.portfolio.DailyPnL/m.cfg.MaxDailyLoss) * 0.2
	}
	return math.Min(1, score)
}

// applyEnrichment folds the external recommendation into the risk score
// and sizing. A REJECT action maxes the additive term; low confidence
// shrinks the order.
func (m *Manager) applyEnrichment(enrich *domain.SentimentSummary, base float64, notional *float64) float64 {
	aiRisk := enrich.RiskScore
	if enrich.Action == "REJECT" {
		aiRisk = 1
	}
	score := math.Min(1, base+m.aiWeight*aiRisk)

	if enrich.Confidence < 0.5 {
		factor := math.Max(enrich.Confidence, 0.2)
		*notional *= factor
		m.log.Info("position scaled down on low enrichment confidence",
			zap.Float64("confidence", enrich.Confidence),
			zap.Float64("factor", factor))
	}
	return score
}

func (m *Manager) stopTakeFor(strategyID string) (float64, float64) {
	if st, ok := strategyStopTake[strategyID]; ok {
		return st.stopPct, st.takePct
	}
	return m.cfg.StopLossPct, m.cfg.TakeProfitPct
}

// EvaluateClose builds the decision for closing a position: size is the
// position size and exposure checks are skipped, but halt accounting
// still applies (closing is always permitted).
func (m *Manager) EvaluateClose(pos *domain.Position, reason domain.CloseReason, price float64) *domain.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig := &domain.Signal{
		StrategyID:   pos.StrategyID,
		Symbol:       pos.Symbol,
		TokenAddress: pos.Symbol,
		Action:       domain.ActionSell,
		Strength:     1,
		Price:        price,
		CreatedAt:    m.now(),
		Metadata:     map[string]string{"close_of": pos.ID},
	}

	return &domain.Decision{
		DecisionID:    idhash.ComputeDecisionID(sig),
		Signal:        sig,
		Verdict:       domain.VerdictAccept,
		SizedQuantity: pos.Size,
		EvaluatedAt:   m.now(),
		CloseOf:       pos.ID,
		CloseReason:   reason,
	}
}

// Confirm converts a reservation into committed cash after a fill.
func (m *Manager) Confirm(decisionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notional, ok := m.reservations[decisionID]
	if !ok {
		return
	}
	delete(m.reservations, decisionID)
	m.portfolio.CashBalance -= notional
	m.portfolio.UpdatedAt = m.now()
}

// Release returns a reservation to available cash after a failure.
func (m *Manager) Release(decisionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notional, ok := m.reservations[decisionID]
	if !ok {
		return
	}
	delete(m.reservations, decisionID)
	m.portfolio.AvailableCash += notional
}

// ReservedFor returns the notional reserved for a decision, zero if none.
func (m *Manager) ReservedFor(decisionID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[decisionID]
}

// AddPosition records a freshly opened position.
func (m *Manager) AddPosition(pos *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolio.Positions[pos.ID] = pos
	m.portfolio.UpdatedAt = m.now()
	m.updateEquityLocked()
}

// MarkPosition updates a position's mark price.
func (m *Manager) MarkPosition(positionID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.portfolio.Positions[positionID]
	if !ok {
		return
	}
	pos.Mark(price)
	m.refreshUnrealizedLocked()
	m.updateEquityLocked()
}

// SetPositionStatus transitions a position's lifecycle state.
func (m *Manager) SetPositionStatus(positionID string, status domain.PositionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.portfolio.Positions[positionID]; ok {
		pos.Status = status
	}
}

// ClosePosition finalizes a position and books the realized result.
func (m *Manager) ClosePosition(positionID string, exitPrice float64) (domain.PositionClose, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.portfolio.Positions[positionID]
	if !ok || pos.Status == domain.PositionClosed {
		return domain.PositionClose{}, false
	}

	pos.Mark(exitPrice)
	realized := pos.UnrealizedPnL
	pos.Status = domain.PositionClosed
	pos.UnrealizedPnL = 0

	entryNotional := pos.Size * pos.EntryPrice
	m.portfolio.CashBalance += entryNotional + realized
	m.portfolio.AvailableCash += entryNotional + realized
	m.portfolio.RealizedPnL += realized
	m.portfolio.DailyPnL += realized
	m.refreshUnrealizedLocked()
	m.updateEquityLocked()

	if m.portfolio.DailyPnL <= -m.cfg.MaxDailyLoss {
		m.haltLocked(fmt.Sprintf("daily loss %.2f breached limit %.2f",
			m.portfolio.DailyPnL, m.cfg.MaxDailyLoss))
	}

	return domain.PositionClose{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		StrategyID:  pos.StrategyID,
		ExitPrice:   exitPrice,
		RealizedPnL: realized,
		ClosedAt:    m.now(),
	}, true
}

// ResetDailyPnL zeroes the daily counter at rollover.
func (m *Manager) ResetDailyPnL() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio.DailyPnL = 0
}

func (m *Manager) refreshUnrealizedLocked() {
	var unrealized float64
	for _, pos := range m.portfolio.Positions {
		if pos.Status != domain.PositionClosed {
			unrealized += pos.UnrealizedPnL
		}
	}
	m.portfolio.UnrealizedPnL = unrealized
}

// updateEquityLocked maintains peak equity and drawdown, halting when the
// drawdown limit is crossed.
func (m *Manager) updateEquityLocked() {
	equity := m.portfolio.Equity()
	if equity > m.portfolio.PeakEquity {
		m.portfolio.PeakEquity = equity
	}
	if m.portfolio.PeakEquity > 0 {
		m.portfolio.CurrentDrawdown = (m.portfolio.PeakEquity - equity) / m.portfolio.PeakEquity
	}
	if m.portfolio.CurrentDrawdown < 0 {
		m.portfolio.CurrentDrawdown = 0
	}
	if m.portfolio.CurrentDrawdown >= m.cfg.MaxDrawdown {
		m.haltLocked(fmt.Sprintf("drawdown %.4f breached limit %.4f",
			m.portfolio.CurrentDrawdown, m.cfg.MaxDrawdown))
	}
}
