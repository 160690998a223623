// Package position tracks open positions, updates marks from fresh views
// and emits close requests when stops or takes trigger.
package position

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/idhash"
)

// PortfolioOwner is the risk-manager surface the position manager uses.
// The portfolio stays owned by risk; this package only asks for
// mutations.
type PortfolioOwner interface {
	AddPosition(pos *domain.Position)
	MarkPosition(positionID string, price float64)
	SetPositionStatus(positionID string, status domain.PositionStatus)
	ClosePosition(positionID string, exitPrice float64) (domain.PositionClose, bool)
	Snapshot() *domain.Portfolio
}

// CloseRequest asks the engine to close a position at the current price.
type CloseRequest struct {
	Position *domain.Position
	Reason   domain.CloseReason
	Price    float64
}

// Manager maintains position lifecycle against the portfolio owner and
// persists position records to the hub.
type Manager struct {
	risk        PortfolioOwner
	hub         *hub.Hub
	trailingPct float64 // 0 disables trailing stops
	log         *zap.Logger
	now         func() time.Time
}

// NewManager creates a position manager. trailingPct > 0 enables trailing
// stops at that distance below the latest price.
func NewManager(risk PortfolioOwner, h *hub.Hub, trailingPct float64, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		risk:        risk,
		hub:         h,
		trailingPct: trailingPct,
		log:         log,
		now:         time.Now,
	}
}

// Open records a position from a confirmed fill.
func (m *Manager) Open(ctx context.Context, decision *domain.Decision, fill *domain.Fill) *domain.Position {
	pos := &domain.Position{
		ID:           idhash.ComputePositionID(decision.DecisionID, fill.Signature),
		Symbol:       fill.Symbol,
		Side:         domain.SideLong,
		Size:         fill.Quantity,
		EntryPrice:   fill.Price,
		CurrentPrice: fill.Price,
		OpenedAt:     m.now(),
		StopPrice:    decision.StopPrice,
		TakePrice:    decision.TakePrice,
		TrailingStop: m.trailingPct > 0,
		RiskScore:    decision.RiskScore,
		StrategyID:   fill.StrategyID,
		Status:       domain.PositionOpen,
	}

	m.risk.AddPosition(pos)
	m.persist(ctx, pos)
	m.log.Info("position opened",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("size", pos.Size),
		zap.Float64("entry", pos.EntryPrice))
	return pos
}

// OnTick updates marks for every open position in the view's symbol and
// returns the close requests the fresh price triggers.
func (m *Manager) OnTick(ctx context.Context, view *domain.AggregatedView) []CloseRequest {
	price := view.ConsensusPrice
	var requests []CloseRequest

	for _, pos := range m.risk.Snapshot().Positions {
		if pos.Symbol != view.Symbol || pos.Status != domain.PositionOpen {
			continue
		}

		m.risk.MarkPosition(pos.ID, price)
		pos.Mark(price)

		if req, changed := m.evaluateExit(pos, price); req != nil {
			requests = append(requests, *req)
		} else if changed {
			m.risk.AddPosition(pos) // persist raised stop through the owner
		}
		m.persist(ctx, pos)
	}
	return requests
}

// evaluateExit checks stop, take and trailing adjustments. Returns a close
// request, or changed=true when only the stop moved.
func (m *Manager) evaluateExit(pos *domain.Position, price float64) (*CloseRequest, bool) {
	if pos.StopPrice != nil && price <= *pos.StopPrice {
		return &CloseRequest{Position: pos, Reason: domain.CloseReasonStop, Price: price}, false
	}
	if pos.TakePrice != nil && price >= *pos.TakePrice {
		return &CloseRequest{Position: pos, Reason: domain.CloseReasonTake, Price: price}, false
	}

	if pos.TrailingStop && m.trailingPct > 0 && pos.StopPrice != nil {
		raised := price * (1 - m.trailingPct)
		if raised > *pos.StopPrice {
			pos.StopPrice = &raised
			m.log.Debug("trailing stop raised",
				zap.String("position", pos.ID),
				zap.Float64("stop", raised))
			return nil, true
		}
	}
	return nil, false
}

// EmergencyCloseAll requests a close for every open position.
func (m *Manager) EmergencyCloseAll() []CloseRequest {
	var requests []CloseRequest
	for _, pos := range m.risk.Snapshot().Positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		requests = append(requests, CloseRequest{
			Position: pos,
			Reason:   domain.CloseReasonEmergency,
			Price:    pos.CurrentPrice,
		})
	}
	m.log.Warn("emergency close requested", zap.Int("positions", len(requests)))
	return requests
}

// MarkClosing flags a position while its close order is in flight.
func (m *Manager) MarkClosing(ctx context.Context, positionID string) {
	m.risk.SetPositionStatus(positionID, domain.PositionClosing)
	if pos := m.lookup(positionID); pos != nil {
		m.persist(ctx, pos)
	}
}

// MarkOpen reverts a closing position whose close order failed; the next
// tick will retry.
func (m *Manager) MarkOpen(ctx context.Context, positionID string) {
	m.risk.SetPositionStatus(positionID, domain.PositionOpen)
	if pos := m.lookup(positionID); pos != nil {
		m.persist(ctx, pos)
	}
}

// Close finalizes a position after its close order filled.
func (m *Manager) Close(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) (domain.PositionClose, bool) {
	closed, ok := m.risk.ClosePosition(positionID, exitPrice)
	if !ok {
		return domain.PositionClose{}, false
	}
	closed.Reason = reason

	if pos := m.lookup(positionID); pos != nil {
		m.persist(ctx, pos)
	}
	m.log.Info("position closed",
		zap.String("position", positionID),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", closed.RealizedPnL))
	return closed, true
}

// Restore loads open positions from the hub back into the portfolio after
// a restart.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	positions, err := m.hub.OpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	for _, pos := range positions {
		m.risk.AddPosition(pos)
	}
	return len(positions), nil
}

func (m *Manager) lookup(positionID string) *domain.Position {
	return m.risk.Snapshot().Positions[positionID]
}

func (m *Manager) persist(ctx context.Context, pos *domain.Position) {
	if m.hub == nil {
		return
	}
	if err := m.hub.SavePosition(ctx, pos); err != nil {
		m.log.Warn("position not persisted",
			zap.String("position", pos.ID), zap.Error(err))
	}
}
