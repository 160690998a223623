package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Hub layers the engine's typed records over a Store.
type Hub struct {
	store    Store
	eventCap int
}

// New creates a Hub over store. eventCap bounds the events:log list.
func New(store Store, eventCap int) *Hub {
	if eventCap <= 0 {
		eventCap = 1000
	}
	return &Hub{store: store, eventCap: eventCap}
}

// Store exposes the raw store for callers needing CAS primitives.
func (h *Hub) Store() Store { return h.store }

func (h *Hub) putJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return h.store.Set(ctx, key, raw)
}

func (h *Hub) getJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := h.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// SaveBotStatus persists the engine state snapshot.
func (h *Hub) SaveBotStatus(ctx context.Context, st *domain.BotStatus) error {
	return h.putJSON(ctx, KeyBotStatus, st)
}

// LoadBotStatus loads the engine state snapshot.
func (h *Hub) LoadBotStatus(ctx context.Context) (*domain.BotStatus, error) {
	var st domain.BotStatus
	if err := h.getJSON(ctx, KeyBotStatus, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveDashboardStats persists the counters snapshot.
func (h *Hub) SaveDashboardStats(ctx context.Context, st *domain.DashboardStats) error {
	return h.putJSON(ctx, KeyDashboardStats, st)
}

// SaveRealtimeMetrics persists the cycle/latency snapshot.
func (h *Hub) SaveRealtimeMetrics(ctx context.Context, m *domain.RealtimeMetrics) error {
	return h.putJSON(ctx, KeyRealtimeMetrics, m)
}

// SaveView publishes an aggregated snapshot under view:<symbol>.
func (h *Hub) SaveView(ctx context.Context, v *domain.AggregatedView) error {
	return h.putJSON(ctx, "view:"+v.Symbol, v)
}

// InsertOpportunity inserts rec idempotently, keyed by candidate address.
// A duplicate insert leaves the original record and only refreshes
// last_event_at. Returns true when the record was newly created.
func (h *Hub) InsertOpportunity(ctx context.Context, rec *domain.OpportunityRecord) (bool, error) {
	key := PrefixOpportunity + rec.Candidate.Address

	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	won, err := h.store.CompareAndSet(ctx, key, nil, raw)
	if err != nil {
		return false, err
	}
	if won {
		addr, err := json.Marshal(rec.Candidate.Address)
		if err != nil {
			return false, err
		}
		return true, h.store.ListAppend(ctx, KeyRawOpportunity, addr)
	}

	// Already present: refresh last_event_at, keep everything else.
	var existing domain.OpportunityRecord
	if err := h.getJSON(ctx, key, &existing); err != nil {
		return false, err
	}
	existing.LastEventAt = rec.LastEventAt
	return false, h.putJSON(ctx, key, &existing)
}

// GetOpportunity loads the record for address.
func (h *Hub) GetOpportunity(ctx context.Context, address string) (*domain.OpportunityRecord, error) {
	var rec domain.OpportunityRecord
	if err := h.getJSON(ctx, PrefixOpportunity+address, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateOpportunityStatus transitions the record for address.
func (h *Hub) UpdateOpportunityStatus(ctx context.Context, address string, status domain.OpportunityStatus, at time.Time) error {
	rec, err := h.GetOpportunity(ctx, address)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.LastEventAt = at
	return h.putJSON(ctx, PrefixOpportunity+address, rec)
}

// RawOpportunities returns the FIFO of candidate addresses, oldest first.
func (h *Hub) RawOpportunities(ctx context.Context, limit int) ([]string, error) {
	raws, err := h.store.ListRange(ctx, KeyRawOpportunity, limit)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(raws))
	for _, raw := range raws {
		var addr string
		if err := json.Unmarshal(raw, &addr); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// SavePosition persists pos and maintains the positions:open set.
func (h *Hub) SavePosition(ctx context.Context, pos *domain.Position) error {
	if err := h.putJSON(ctx, PrefixPosition+pos.ID, pos); err != nil {
		return err
	}
	if pos.Status == domain.PositionClosed {
		return h.store.SetRemove(ctx, KeyOpenPositions, pos.ID)
	}
	return h.store.SetAdd(ctx, KeyOpenPositions, pos.ID)
}

// GetPosition loads one position record.
func (h *Hub) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	var pos domain.Position
	if err := h.getJSON(ctx, PrefixPosition+id, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// OpenPositions loads every position in the open set.
func (h *Hub) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	ids, err := h.store.SetMembers(ctx, KeyOpenPositions)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Position, 0, len(ids))
	for _, id := range ids {
		pos, err := h.GetPosition(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

// AppendEvent appends ev to the capped events:log list.
func (h *Hub) AppendEvent(ctx context.Context, ev *domain.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := h.store.ListAppend(ctx, KeyEventLog, raw); err != nil {
		return err
	}
	return h.store.ListTrim(ctx, KeyEventLog, h.eventCap)
}

// RecentEvents returns up to limit events, oldest first.
func (h *Hub) RecentEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	raws, err := h.store.ListRange(ctx, KeyEventLog, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Event, 0, len(raws))
	for _, raw := range raws {
		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, nil
}

// DecisionRecord is the persisted execution state of a decision, used for
// at-most-once submission and restart reconciliation.
type DecisionRecord struct {
	DecisionID  string
	Symbol      string
	Status      string // submitting | submitted | filled | failed | expired
	Signature   string
	BundleID    string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// AcquireInflight wins the right to submit decisionID exactly once.
func (h *Hub) AcquireInflight(ctx context.Context, decisionID string) (bool, error) {
	return h.store.CompareAndSet(ctx, PrefixDecision+decisionID+":inflight", nil, []byte("1"))
}

// ReleaseInflight clears the in-flight flag after a terminal outcome.
func (h *Hub) ReleaseInflight(ctx context.Context, decisionID string) error {
	return h.store.Delete(ctx, PrefixDecision+decisionID+":inflight")
}

// SaveDecisionRecord persists the submission state of a decision.
func (h *Hub) SaveDecisionRecord(ctx context.Context, rec *DecisionRecord) error {
	return h.putJSON(ctx, PrefixDecision+rec.DecisionID+":record", rec)
}

// GetDecisionRecord loads the submission state of a decision.
func (h *Hub) GetDecisionRecord(ctx context.Context, decisionID string) (*DecisionRecord, error) {
	var rec DecisionRecord
	if err := h.getJSON(ctx, PrefixDecision+decisionID+":record", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SubmittedDecisions returns every decision record still marked submitted,
// for reconciliation after a restart.
func (h *Hub) SubmittedDecisions(ctx context.Context) ([]*DecisionRecord, error) {
	keys, err := h.store.Keys(ctx, PrefixDecision)
	if err != nil {
		return nil, err
	}
	var out []*DecisionRecord
	for _, key := range keys {
		if !strings.HasSuffix(key, ":record") {
			continue
		}
		var rec DecisionRecord
		if err := h.getJSON(ctx, key, &rec); err != nil {
			return nil, err
		}
		if rec.Status == "submitted" {
			out = append(out, &rec)
		}
	}
	return out, nil
}
