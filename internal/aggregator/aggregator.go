// Package aggregator fuses per-source quotes into a single confident view
// per symbol.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
)

// Defaults for quote freshness and view caching.
const (
	DefaultFreshnessWindow = 10 * time.Second
	DefaultViewTTL         = 5 * time.Second
)

// Options configures the Aggregator.
type Options struct {
	Clients []venue.Client
	// Weights overrides the per-source fusion weight; unset sources use
	// their class default.
	Weights map[string]float64
	// FreshnessWindow bounds quote age; older quotes are discarded.
	FreshnessWindow time.Duration
	// ViewTTL bounds how long a fused view is served from cache.
	ViewTTL time.Duration
	// Hub receives view snapshots when set.
	Hub *hub.Hub
	Log *zap.Logger
}

// Aggregator fuses quotes pulled from venue clients and pushed from the
// stream manager. There is exactly one live view per symbol.
type Aggregator struct {
	clients   []venue.Client
	weights   map[string]float64
	freshness time.Duration
	viewTTL   time.Duration
	hub       *hub.Hub
	log       *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	views  map[string]*cachedView
	pushed map[string]map[string]*domain.Quote // symbol -> source -> latest
}

type cachedView struct {
	view    *domain.AggregatedView
	expires time.Time
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	freshness := opts.FreshnessWindow
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	viewTTL := opts.ViewTTL
	if viewTTL <= 0 {
		viewTTL = DefaultViewTTL
	}
	return &Aggregator{
		clients:   opts.Clients,
		weights:   opts.Weights,
		freshness: freshness,
		viewTTL:   viewTTL,
		hub:       opts.Hub,
		log:       log,
		now:       time.Now,
		views:     make(map[string]*cachedView),
		pushed:    make(map[string]map[string]*domain.Quote),
	}
}

// weightOf resolves the fusion weight of a quote.
func (a *Aggregator) weightOf(q *domain.Quote) float64 {
	if w, ok := a.weights[q.SourceID]; ok {
		return w
	}
	return domain.DefaultSourceWeight(q.Class)
}

// OnEvent is the push path from the stream manager. Quote events update
// the per-source latest and invalidate the cached view; the next read
// recomputes lazily.
func (a *Aggregator) OnEvent(ev domain.VenueEvent) {
	if ev.Kind != domain.VenueEventQuote || ev.Quote == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	bySource, ok := a.pushed[ev.Quote.Symbol]
	if !ok {
		bySource = make(map[string]*domain.Quote)
		a.pushed[ev.Quote.Symbol] = bySource
	}
	bySource[ev.Quote.SourceID] = ev.Quote
	delete(a.views, ev.Quote.Symbol)
}

// RequestView returns the fused view for symbol, serving the cached view
// while fresh. Fails NoSources when nothing answered and AllStale when
// quotes exist but all fell out of the freshness window.
func (a *Aggregator) RequestView(ctx context.Context, symbol string) (*domain.AggregatedView, error) {
	a.mu.Lock()
	if cached, ok := a.views[symbol]; ok && a.now().Before(cached.expires) {
		view := *cached.view
		a.mu.Unlock()
		return &view, nil
	}
	a.mu.Unlock()

	quotes, sawAny := a.collect(ctx, symbol)
	if len(quotes) == 0 {
		if sawAny {
			return nil, fmt.Errorf("%w: %s", domain.ErrAllStale, symbol)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrNoSources, symbol)
	}

	view := fuse(symbol, quotes, a.weightOf)
	view.UpdatedAt = a.now()

	a.mu.Lock()
	// Per-symbol views are monotonic in UpdatedAt.
	if prev, ok := a.views[symbol]; ok && prev.view.UpdatedAt.After(view.UpdatedAt) {
		stale := *prev.view
		a.mu.Unlock()
		return &stale, nil
	}
	a.views[symbol] = &cachedView{view: view, expires: view.UpdatedAt.Add(a.viewTTL)}
	a.mu.Unlock()

	if a.hub != nil {
		if err := a.hub.SaveView(ctx, view); err != nil {
			a.log.Debug("view snapshot not persisted", zap.Error(err))
		}
	}

	out := *view
	return &out, nil
}

// collect gathers non-stale quotes from pull clients and the push cache.
// sawAny reports whether any quote existed at all, stale or not.
func (a *Aggregator) collect(ctx context.Context, symbol string) ([]*domain.Quote, bool) {
	now := a.now()

	type result struct {
		quote *domain.Quote
		err   error
		id    string
	}

	results := make(chan result, len(a.clients))
	var wg sync.WaitGroup
	for _, client := range a.clients {
		wg.Add(1)
		go func(c venue.Client) {
			defer wg.Done()
			q, err := c.Quote(ctx, symbol)
			results <- result{quote: q, err: err, id: c.ID()}
		}(client)
	}
	wg.Wait()
	close(results)

	bySource := make(map[string]*domain.Quote)
	sawAny := false
	for r := range results {
		if r.err != nil {
			// A failing source is dropped for this fusion only.
			a.log.Debug("source dropped for fusion",
				zap.String("source", r.id),
				zap.String("symbol", symbol),
				zap.Error(r.err))
			continue
		}
		sawAny = true
		if !r.quote.Stale(now, a.freshness) {
			bySource[r.quote.SourceID] = r.quote
		}
	}

	a.mu.Lock()
	for source, q := range a.pushed[symbol] {
		sawAny = true
		if q.Stale(now, a.freshness) {
			continue
		}
		// Pulled quotes are at least as fresh as pushed ones.
		if _, ok := bySource[source]; !ok {
			bySource[source] = q
		}
	}
	a.mu.Unlock()

	quotes := make([]*domain.Quote, 0, len(bySource))
	for _, q := range bySource {
		quotes = append(quotes, q)
	}
	return quotes, sawAny
}
