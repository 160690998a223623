package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Phase is the per-symbol strategy state machine:
// idle -> armed -> firing -> cooling -> idle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseArmed   Phase = "armed"
	PhaseFiring  Phase = "firing"
	PhaseCooling Phase = "cooling"
)

// Settings are the per-strategy knobs the manager enforces.
type Settings struct {
	Enabled             bool
	MinConfidence       float64
	ConfidenceThreshold float64
	Cooldown            time.Duration
}

// managed wraps a strategy with its runtime state. The mutex serializes
// Analyze: a strategy never sees two analyses concurrently.
type managed struct {
	strategy Strategy
	settings Settings

	mu             sync.Mutex
	state          domain.StrategyState
	phases         map[string]Phase
	symbolCooldown map[string]time.Time
}

// ParamUpdater is implemented by strategies with runtime-tunable params.
type ParamUpdater interface {
	UpdateParams(patch map[string]float64) error
}

// Manager drives the registered strategies and owns their state.
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]*managed
	order      []string
	halted     func() bool
	log        *zap.Logger
	now        func() time.Time
}

// NewManager creates a Manager. halted reports the engine halt state and
// gates every analysis.
func NewManager(halted func() bool, log *zap.Logger) *Manager {
	if halted == nil {
		halted = func() bool { return false }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		strategies: make(map[string]*managed),
		halted:     halted,
		log:        log,
		now:        time.Now,
	}
}

// Register adds a strategy with its settings.
func (m *Manager) Register(s Strategy, settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategies[s.ID()] = &managed{
		strategy: s,
		settings: settings,
		state: domain.StrategyState{
			StrategyID: s.ID(),
			Enabled:    settings.Enabled,
		},
		phases:         make(map[string]Phase),
		symbolCooldown: make(map[string]time.Time),
	}
	m.order = append(m.order, s.ID())
}

// Analyze runs every enabled strategy over the context and returns the
// emitted signals. Per strategy the call is serialized; the firing ->
// cooling transition is unconditional on emission regardless of what risk
// decides downstream.
func (m *Manager) Analyze(ctx context.Context, sc *Context) []*domain.Signal {
	m.mu.RLock()
	ordered := make([]*managed, 0, len(m.order))
	for _, id := range m.order {
		ordered = append(ordered, m.strategies[id])
	}
	m.mu.RUnlock()

	var signals []*domain.Signal
	for _, mg := range ordered {
		if sig := m.analyzeOne(ctx, mg, sc); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (m *Manager) analyzeOne(ctx context.Context, mg *managed, sc *Context) *domain.Signal {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	symbol := sc.View.Symbol
	now := m.now()

	if !m.gate(mg, sc, now) {
		mg.phases[symbol] = PhaseIdle
		return nil
	}
	mg.phases[symbol] = PhaseArmed

	signal, err := mg.strategy.Analyze(ctx, sc)
	if err != nil {
		m.log.Warn("strategy analysis failed",
			zap.String("strategy", mg.strategy.ID()),
			zap.String("symbol", symbol),
			zap.Error(err))
		mg.phases[symbol] = PhaseIdle
		return nil
	}
	if signal == nil || signal.Strength < mg.settings.ConfidenceThreshold {
		mg.phases[symbol] = PhaseIdle
		return nil
	}

	mg.phases[symbol] = PhaseFiring
	mg.state.LastSignalAt = now
	mg.state.SignalsGenerated++
	mg.symbolCooldown[symbol] = now.Add(mg.settings.Cooldown)
	mg.phases[symbol] = PhaseCooling

	return signal
}

// gate is the eligibility check every strategy shares.
func (m *Manager) gate(mg *managed, sc *Context, now time.Time) bool {
	if !mg.state.Enabled {
		return false
	}
	if m.halted() {
		return false
	}
	if sc.View.Confidence < mg.settings.MinConfidence {
		return false
	}
	if mg.state.InCooldown(now) {
		return false
	}
	if until, ok := mg.symbolCooldown[sc.View.Symbol]; ok && now.Before(until) {
		return false
	}
	if sc.Portfolio != nil {
		for _, pos := range sc.Portfolio.Positions {
			if pos.StrategyID == mg.strategy.ID() &&
				pos.Symbol == sc.View.Symbol &&
				pos.Status != domain.PositionClosed {
				return false
			}
		}
	}
	return true
}

// SymbolPhase returns the state machine phase of a strategy for a symbol.
func (m *Manager) SymbolPhase(strategyID, symbol string) Phase {
	m.mu.RLock()
	mg, ok := m.strategies[strategyID]
	m.mu.RUnlock()
	if !ok {
		return PhaseIdle
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	if phase, ok := mg.phases[symbol]; ok {
		return phase
	}
	return PhaseIdle
}

// Toggle flips a strategy's enabled flag, returning the new value.
func (m *Manager) Toggle(strategyID string) (bool, error) {
	m.mu.RLock()
	mg, ok := m.strategies[strategyID]
	m.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("unknown strategy %q", strategyID)
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.state.Enabled = !mg.state.Enabled
	return mg.state.Enabled, nil
}

// Reset clears all runtime strategy state, keeping registrations and
// enablement.
func (m *Manager) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mg := range m.strategies {
		mg.mu.Lock()
		enabled := mg.state.Enabled
		mg.state = domain.StrategyState{
			StrategyID: mg.strategy.ID(),
			Enabled:    enabled,
		}
		mg.phases = make(map[string]Phase)
		mg.symbolCooldown = make(map[string]time.Time)
		mg.mu.Unlock()
	}
}

// UpdateParams patches a strategy's typed parameters.
func (m *Manager) UpdateParams(strategyID string, patch map[string]float64) error {
	m.mu.RLock()
	mg, ok := m.strategies[strategyID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown strategy %q", strategyID)
	}

	updater, ok := mg.strategy.(ParamUpdater)
	if !ok {
		return fmt.Errorf("strategy %q has no tunable parameters", strategyID)
	}
	return updater.UpdateParams(patch)
}

// State returns a copy of a strategy's bookkeeping.
func (m *Manager) State(strategyID string) (domain.StrategyState, bool) {
	m.mu.RLock()
	mg, ok := m.strategies[strategyID]
	m.mu.RUnlock()
	if !ok {
		return domain.StrategyState{}, false
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.state, true
}

// States returns a copy of every strategy's bookkeeping.
func (m *Manager) States() map[string]domain.StrategyState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.StrategyState, len(m.strategies))
	for id, mg := range m.strategies {
		mg.mu.Lock()
		out[id] = mg.state
		mg.mu.Unlock()
	}
	return out
}

// SetCooldown imposes a strategy-wide cooldown (risk uses this after
// consecutive losses).
func (m *Manager) SetCooldown(strategyID string, until time.Time) {
	m.mu.RLock()
	mg, ok := m.strategies[strategyID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	mg.mu.Lock()
	mg.state.CooldownUntil = until
	mg.mu.Unlock()
}

// OnFill routes a fill to its strategy.
func (m *Manager) OnFill(fill domain.Fill) {
	m.mu.RLock()
	mg, ok := m.strategies[fill.StrategyID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	mg.strategy.OnFill(fill)
}

// OnClose routes a close to its strategy and records the outcome.
func (m *Manager) OnClose(close domain.PositionClose) {
	m.mu.RLock()
	mg, ok := m.strategies[close.StrategyID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	mg.mu.Lock()
	mg.state.RecordOutcome(close.RealizedPnL)
	mg.mu.Unlock()

	mg.strategy.OnClose(close)
}

// LossesInRow returns the current consecutive-loss count for a strategy.
func (m *Manager) LossesInRow(strategyID string) int {
	state, ok := m.State(strategyID)
	if !ok {
		return 0
	}
	return state.LossesInRow
}
