// Package reporter serializes engine lifecycle events to the hub's event
// log for the host API to consume.
package reporter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
)

// Reporter appends events and keeps the dashboard counters current.
type Reporter struct {
	hub *hub.Hub
	log *zap.Logger
	now func() time.Time

	mu    sync.Mutex
	stats domain.DashboardStats
}

// New creates a Reporter.
func New(h *hub.Hub, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{hub: h, log: log, now: time.Now}
}

// emit appends one event; hub failures are logged, never fatal.
func (r *Reporter) emit(ctx context.Context, eventType domain.EventType, component string, severity domain.Severity, payload map[string]string) {
	event := &domain.Event{
		ID:        uuid.NewString(),
		Timestamp: r.now(),
		Type:      eventType,
		Component: component,
		Severity:  severity,
		Payload:   payload,
	}
	if err := r.hub.AppendEvent(ctx, event); err != nil {
		r.log.Warn("event not appended", zap.String("type", string(eventType)), zap.Error(err))
	}
	r.flushStats(ctx)
}

func (r *Reporter) flushStats(ctx context.Context) {
	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()
	if err := r.hub.SaveDashboardStats(ctx, &stats); err != nil {
		r.log.Debug("stats not persisted", zap.Error(err))
	}
}

// SignalGenerated reports a strategy emission.
func (r *Reporter) SignalGenerated(ctx context.Context, sig *domain.Signal) {
	r.mu.Lock()
	r.stats.SignalsGenerated++
	r.mu.Unlock()

	r.emit(ctx, domain.EventSignalGenerated, "strategy", domain.SeverityInfo, map[string]string{
		"strategy": sig.StrategyID,
		"symbol":   sig.Symbol,
		"action":   string(sig.Action),
		"strength": strconv.FormatFloat(sig.Strength, 'f', 3, 64),
	})
}

// DecisionMade reports a risk verdict.
func (r *Reporter) DecisionMade(ctx context.Context, d *domain.Decision) {
	r.mu.Lock()
	if d.Accepted() {
		r.stats.DecisionsAccepted++
	} else {
		r.stats.DecisionsRejected++
	}
	r.mu.Unlock()

	payload := map[string]string{
		"decision": d.DecisionID,
		"symbol":   d.Signal.Symbol,
		"verdict":  string(d.Verdict),
	}
	severity := domain.SeverityInfo
	if !d.Accepted() {
		payload["reject_reason"] = string(d.RejectReason)
	}
	r.emit(ctx, domain.EventDecisionMade, "risk", severity, payload)
}

// OrderSubmitted reports a submission.
func (r *Reporter) OrderSubmitted(ctx context.Context, decisionID, signature, bundleID string) {
	r.mu.Lock()
	r.stats.OrdersSubmitted++
	r.mu.Unlock()

	r.emit(ctx, domain.EventOrderSubmitted, "executor", domain.SeverityInfo, map[string]string{
		"decision":  decisionID,
		"signature": signature,
		"bundle":    bundleID,
	})
}

// Fill reports a confirmed execution.
func (r *Reporter) Fill(ctx context.Context, fill *domain.Fill) {
	r.mu.Lock()
	r.stats.Fills++
	r.mu.Unlock()

	r.emit(ctx, domain.EventFill, "executor", domain.SeverityInfo, map[string]string{
		"decision": fill.DecisionID,
		"symbol":   fill.Symbol,
		"price":    strconv.FormatFloat(fill.Price, 'f', 8, 64),
		"quantity": strconv.FormatFloat(fill.Quantity, 'f', 4, 64),
	})
}

// PositionOpened reports a new position.
func (r *Reporter) PositionOpened(ctx context.Context, pos *domain.Position) {
	r.emit(ctx, domain.EventPositionOpened, "position", domain.SeverityInfo, map[string]string{
		"position": pos.ID,
		"symbol":   pos.Symbol,
		"size":     strconv.FormatFloat(pos.Size, 'f', 4, 64),
		"entry":    strconv.FormatFloat(pos.EntryPrice, 'f', 8, 64),
	})
}

// PositionUpdated reports a mark or stop adjustment.
func (r *Reporter) PositionUpdated(ctx context.Context, pos *domain.Position) {
	r.emit(ctx, domain.EventPositionUpdated, "position", domain.SeverityInfo, map[string]string{
		"position": pos.ID,
		"price":    strconv.FormatFloat(pos.CurrentPrice, 'f', 8, 64),
		"pnl":      strconv.FormatFloat(pos.UnrealizedPnL, 'f', 4, 64),
	})
}

// PositionClosed reports a terminal close.
func (r *Reporter) PositionClosed(ctx context.Context, closed domain.PositionClose) {
	r.mu.Lock()
	r.stats.PositionsClosed++
	r.stats.RealizedPnL += closed.RealizedPnL
	r.mu.Unlock()

	r.emit(ctx, domain.EventPositionClosed, "position", domain.SeverityInfo, map[string]string{
		"position": closed.PositionID,
		"symbol":   closed.Symbol,
		"reason":   string(closed.Reason),
		"pnl":      strconv.FormatFloat(closed.RealizedPnL, 'f', 4, 64),
	})
}

// EngineHalted reports a halt with its reason.
func (r *Reporter) EngineHalted(ctx context.Context, reason string) {
	r.emit(ctx, domain.EventEngineHalted, "engine", domain.SeverityCritical, map[string]string{
		"reason": reason,
	})
}

// EngineResumed reports a resume.
func (r *Reporter) EngineResumed(ctx context.Context) {
	r.emit(ctx, domain.EventEngineResumed, "engine", domain.SeverityInfo, nil)
}

// ComponentCrashed reports a contained subsystem panic.
func (r *Reporter) ComponentCrashed(ctx context.Context, component string, err string) {
	r.emit(ctx, domain.EventComponentCrash, component, domain.SeverityCritical, map[string]string{
		"error": err,
	})
}

// Stats returns the current counters.
func (r *Reporter) Stats() domain.DashboardStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
