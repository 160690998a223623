package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/position"
)

// Control verbs consumed by the host API.

// EmergencyCloseAll halts the engine and requests a close for every open
// position.
func (e *Engine) EmergencyCloseAll(ctx context.Context) int {
	e.risk.Halt("emergency close requested")
	e.emitHaltTransitions(ctx)

	requests := e.positions.EmergencyCloseAll()
	for _, req := range requests {
		view, err := e.agg.RequestView(ctx, req.Position.Symbol)
		if err != nil {
			// No fresh consensus; close at the last mark.
			view = &domain.AggregatedView{
				Symbol:         req.Position.Symbol,
				ConsensusPrice: req.Position.CurrentPrice,
			}
		} else {
			req.Price = view.ConsensusPrice
		}
		e.executeClose(ctx, req, view)
	}
	return len(requests)
}

// Resume lifts a halt and reports the transition.
func (e *Engine) Resume(ctx context.Context) {
	e.risk.Resume()
	e.emitHaltTransitions(ctx)
}

// ToggleStrategy flips a strategy's enabled flag.
func (e *Engine) ToggleStrategy(id string) (bool, error) {
	enabled, err := e.strategies.Toggle(id)
	if err != nil {
		return false, err
	}
	e.log.Info("strategy toggled", zap.String("strategy", id), zap.Bool("enabled", enabled))
	return enabled, nil
}

// ResetStrategies clears all runtime strategy state.
func (e *Engine) ResetStrategies() {
	e.strategies.Reset()
	e.log.Info("strategy state reset")
}

// UpdateStrategyParams patches a strategy's typed parameters.
func (e *Engine) UpdateStrategyParams(id string, patch map[string]float64) error {
	return e.strategies.UpdateParams(id, patch)
}

// ClosePosition closes one position by id. Without force, a position
// already closing is left alone.
func (e *Engine) ClosePosition(ctx context.Context, positionID string, reason domain.CloseReason, force bool) error {
	if reason == "" {
		reason = domain.CloseReasonManual
	}

	pos, ok := e.risk.Snapshot().Positions[positionID]
	if !ok {
		return fmt.Errorf("unknown position %q", positionID)
	}
	switch pos.Status {
	case domain.PositionClosed:
		return fmt.Errorf("position %q already closed", positionID)
	case domain.PositionClosing:
		if !force {
			return fmt.Errorf("position %q close already in flight", positionID)
		}
	}

	view, err := e.agg.RequestView(ctx, pos.Symbol)
	price := pos.CurrentPrice
	if err == nil {
		price = view.ConsensusPrice
	} else {
		view = &domain.AggregatedView{Symbol: pos.Symbol, ConsensusPrice: price}
	}

	e.executeClose(ctx, position.CloseRequest{Position: pos, Reason: reason, Price: price}, view)
	return nil
}
