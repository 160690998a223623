// Package engine wires the subsystems into the live trading loop and
// exposes the control verbs the host API calls.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/aggregator"
	"github.com/SynergiaOS/SolanaSniper/internal/config"
	"github.com/SynergiaOS/SolanaSniper/internal/domain"
	"github.com/SynergiaOS/SolanaSniper/internal/enrichment"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/idhash"
	"github.com/SynergiaOS/SolanaSniper/internal/observability"
	"github.com/SynergiaOS/SolanaSniper/internal/position"
	"github.com/SynergiaOS/SolanaSniper/internal/reporter"
	"github.com/SynergiaOS/SolanaSniper/internal/storage"
	"github.com/SynergiaOS/SolanaSniper/internal/strategy"
	"github.com/SynergiaOS/SolanaSniper/internal/stream"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
)

// Shutdown drains in-flight work for at most this long.
const shutdownGrace = 10 * time.Second

// Restart policy for crashed subsystems.
const (
	crashRestartDelay = time.Second
	crashWindowLimit  = 3
	crashWindow       = time.Minute
)

// symbolState is the engine's short-horizon memory per symbol, feeding
// momentum and volatility inputs to the strategies.
type symbolState struct {
	prevPrice  float64
	prevVolume float64
	prices     []float64 // bounded ring of recent consensus prices
	pool       *domain.NewPoolEvent
	address    string
	sourceID   string
}

const priceHistoryLen = 20

// Options wires an Engine.
type Options struct {
	Config     *config.Config
	Hub        *hub.Hub
	Aggregator *aggregator.Aggregator
	Strategies *strategy.Manager
	Risk       RiskManager
	Executor   ExecutionCoordinator
	Positions  *position.Manager
	Reporter   *reporter.Reporter
	Stream     *stream.Manager
	Enrichment enrichment.Provider // optional
	Trades     storage.TradeStore  // optional
	Metadata   []venue.MetadataProvider
	Watchlist  []string
	Metrics    *observability.Metrics // optional
	Log        *zap.Logger
}

// RiskManager is the risk surface the engine drives.
type RiskManager interface {
	Evaluate(sig *domain.Signal, enrich *domain.SentimentSummary) *domain.Decision
	EvaluateClose(pos *domain.Position, reason domain.CloseReason, price float64) *domain.Decision
	Halted() bool
	HaltReason() string
	Halt(reason string)
	Resume()
	Snapshot() *domain.Portfolio
}

// ExecutionCoordinator is the execution surface the engine drives.
type ExecutionCoordinator interface {
	Execute(ctx context.Context, decision *domain.Decision, view *domain.AggregatedView) (*domain.Fill, error)
	Reconcile(ctx context.Context) error
}

// Engine is the top-level coordinator.
type Engine struct {
	cfg        *config.Config
	hub        *hub.Hub
	agg        *aggregator.Aggregator
	strategies *strategy.Manager
	risk       RiskManager
	exec       ExecutionCoordinator
	positions  *position.Manager
	reporter   *reporter.Reporter
	stream     *stream.Manager
	enrich     enrichment.Provider
	trades     storage.TradeStore
	metadata   []venue.MetadataProvider
	metrics    *observability.Metrics
	log        *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	wasHalted bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	watch     map[string]*symbolState
	startedAt time.Time

	cycles       int64
	cycleMsTotal int64
	lastCycleMs  int64
}

// New creates an Engine.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:        opts.Config,
		hub:        opts.Hub,
		agg:        opts.Aggregator,
		strategies: opts.Strategies,
		risk:       opts.Risk,
		exec:       opts.Executor,
		positions:  opts.Positions,
		reporter:   opts.Reporter,
		stream:     opts.Stream,
		enrich:     opts.Enrichment,
		trades:     opts.Trades,
		metadata:   opts.Metadata,
		metrics:    opts.Metrics,
		log:        log,
		now:        time.Now,
		watch:      make(map[string]*symbolState),
	}
	for _, symbol := range opts.Watchlist {
		e.watch[symbol] = &symbolState{address: symbol}
	}
	return e
}

// Start reconciles stale submissions, restores positions and launches the
// subsystem loops. It is idempotent while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.startedAt = e.now()
	e.mu.Unlock()

	// Settle anything a previous process left in flight before taking
	// new work.
	if err := e.exec.Reconcile(runCtx); err != nil {
		e.log.Warn("reconciliation incomplete", zap.Error(err))
	}
	if restored, err := e.positions.Restore(runCtx); err != nil {
		e.log.Warn("position restore failed", zap.Error(err))
	} else if restored > 0 {
		e.log.Info("positions restored", zap.Int("count", restored))
	}

	if e.stream != nil {
		if err := e.stream.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("start stream manager: %w", err)
		}
		e.spawnContained(runCtx, "stream-pump", e.pumpEvents)
	}
	e.spawnContained(runCtx, "tick-loop", e.tickLoop)

	e.publishStatus(runCtx)
	e.log.Info("engine started",
		zap.Bool("dry_run", e.cfg.Bot.DryRun),
		zap.Bool("paper_trading", e.cfg.Bot.PaperTrading),
		zap.Int("watchlist", len(e.watch)))
	return nil
}

// Stop cancels the loops and waits up to the grace period for drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		e.log.Warn("shutdown grace period elapsed with work in flight")
	}

	ctx, cancelStatus := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelStatus()
	e.publishStatus(ctx)
	e.log.Info("engine stopped")
}

// Running reports whether the loops are active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// spawnContained runs fn in a goroutine with panic containment: a crash
// restarts the subsystem after a delay, up to the per-minute budget, then
// halts the engine.
func (e *Engine) spawnContained(ctx context.Context, name string, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		var crashes []time.Time
		for ctx.Err() == nil {
			panicked := e.runOnce(ctx, name, fn)
			if !panicked || ctx.Err() != nil {
				return
			}

			now := e.now()
			crashes = append(crashes, now)
			recent := crashes[:0]
			for _, at := range crashes {
				if now.Sub(at) < crashWindow {
					recent = append(recent, at)
				}
			}
			crashes = recent
			if len(crashes) > crashWindowLimit {
				e.log.Error("subsystem crash budget exhausted", zap.String("component", name))
				e.risk.Halt(fmt.Sprintf("component %s crashed repeatedly", name))
				e.reporter.EngineHalted(ctx, e.risk.HaltReason())
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(crashRestartDelay):
			}
		}
	}()
}

// runOnce executes fn, converting a panic into a contained crash report.
func (e *Engine) runOnce(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err := fmt.Sprintf("%v", r)
			e.log.Error("subsystem panicked",
				zap.String("component", name),
				zap.String("panic", err))
			e.reporter.ComponentCrashed(ctx, name, err)
		}
	}()
	fn(ctx)
	return false
}

// pumpEvents drains the stream manager into the aggregator and discovery.
func (e *Engine) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.stream.C():
			if !ok {
				return
			}
			e.handleVenueEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleVenueEvent(ctx context.Context, ev domain.VenueEvent) {
	switch ev.Kind {
	case domain.VenueEventQuote:
		e.agg.OnEvent(ev)
	case domain.VenueEventNewToken:
		if ev.NewToken == nil {
			return
		}
		e.discover(ctx, ev.NewToken.Mint, ev.SourceID, &domain.OpportunityCandidate{
			Address:   ev.NewToken.Mint,
			Symbol:    ev.NewToken.Symbol,
			SourceID:  ev.SourceID,
			MarketCap: ev.NewToken.MarketCap,
			Creator:   ev.NewToken.Creator,
		}, nil)
	case domain.VenueEventNewPool:
		if ev.NewPool == nil {
			return
		}
		address := ev.NewPool.BaseMint
		if address == "" {
			address = ev.NewPool.TxSignature
		}
		e.discover(ctx, address, ev.SourceID, &domain.OpportunityCandidate{
			Address:      address,
			Symbol:       ev.NewPool.Symbol,
			SourceID:     ev.SourceID,
			LiquidityUSD: ev.NewPool.LiquidityUSD,
		}, ev.NewPool)
	}
}

// discover records an opportunity and adds its symbol to the watchlist.
func (e *Engine) discover(ctx context.Context, address, sourceID string, candidate *domain.OpportunityCandidate, pool *domain.NewPoolEvent) {
	if address == "" {
		return
	}

	now := e.now()
	created, err := e.hub.InsertOpportunity(ctx, &domain.OpportunityRecord{
		Candidate:    *candidate,
		DiscoveredAt: now,
		Status:       domain.OpportunityRaw,
		LastEventAt:  now,
	})
	if err != nil {
		e.log.Warn("opportunity not recorded", zap.String("address", address), zap.Error(err))
	}

	e.mu.Lock()
	state, ok := e.watch[address]
	if !ok {
		state = &symbolState{address: address}
		e.watch[address] = state
	}
	state.sourceID = sourceID
	if pool != nil {
		state.pool = pool
	}
	e.mu.Unlock()

	if created {
		e.log.Info("opportunity discovered",
			zap.String("address", address),
			zap.String("source", sourceID))
	}
}

// tickLoop runs the trading cycle at the configured interval.
func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.UpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := e.now()
			e.cycle(ctx)
			elapsed := e.now().Sub(start)

			e.mu.Lock()
			e.cycles++
			e.lastCycleMs = elapsed.Milliseconds()
			e.cycleMsTotal += e.lastCycleMs
			e.mu.Unlock()

			if e.metrics != nil {
				e.metrics.CycleDuration.Observe(elapsed.Seconds())
			}
			e.publishStatus(ctx)
		}
	}
}

// cycle runs one pass over the watchlist.
func (e *Engine) cycle(ctx context.Context) {
	e.emitHaltTransitions(ctx)

	for _, symbol := range e.watchedSymbols() {
		e.processSymbol(ctx, symbol)
	}
}

func (e *Engine) watchedSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	symbols := make([]string, 0, len(e.watch))
	for s := range e.watch {
		symbols = append(symbols, s)
	}
	return symbols
}

// emitHaltTransitions reports halt/resume edges to the event log.
func (e *Engine) emitHaltTransitions(ctx context.Context) {
	halted := e.risk.Halted()
	e.mu.Lock()
	changed := halted != e.wasHalted
	e.wasHalted = halted
	e.mu.Unlock()
	if !changed {
		return
	}
	if halted {
		e.reporter.EngineHalted(ctx, e.risk.HaltReason())
	} else {
		e.reporter.EngineResumed(ctx)
	}
}

// processSymbol runs the full pipeline for one symbol tick.
func (e *Engine) processSymbol(ctx context.Context, symbol string) {
	view, err := e.agg.RequestView(ctx, symbol)
	if err != nil {
		e.log.Debug("no view this tick", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Exits run before entries so freed exposure is available.
	for _, req := range e.positions.OnTick(ctx, view) {
		e.executeClose(ctx, req, view)
	}

	market, state := e.marketConditions(symbol, view)

	sc := &strategy.Context{
		View:      view,
		Metadata:  e.tokenMetadata(ctx, state.address),
		Pool:      state.pool,
		Portfolio: e.risk.Snapshot(),
		Market:    market,
	}
	if e.enrich != nil {
		if summary, err := e.enrich.Enrich(ctx, symbol); err == nil {
			sc.Enrichment = summary
		}
	}

	for _, sig := range e.strategies.Analyze(ctx, sc) {
		e.reporter.SignalGenerated(ctx, sig)
		if e.metrics != nil {
			e.metrics.SignalsGenerated.WithLabelValues(sig.StrategyID).Inc()
		}
		e.processSignal(ctx, sig, sc, view)
	}
}

func (e *Engine) processSignal(ctx context.Context, sig *domain.Signal, sc *strategy.Context, view *domain.AggregatedView) {
	decision := e.risk.Evaluate(sig, sc.Enrichment)
	e.reporter.DecisionMade(ctx, decision)
	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(decision.Verdict), string(decision.RejectReason)).Inc()
	}
	if !decision.Accepted() {
		return
	}

	e.markOpportunity(ctx, sig.TokenAddress, domain.OpportunityDecided)

	fill, err := e.exec.Execute(ctx, decision, view)
	if err != nil {
		e.log.Warn("execution failed",
			zap.String("decision", decision.DecisionID),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return
	}
	if fill == nil {
		return // suppressed: dry run or duplicate
	}

	e.reporter.Fill(ctx, fill)
	if e.metrics != nil {
		e.metrics.Fills.Inc()
	}
	pos := e.positions.Open(ctx, decision, fill)
	e.reporter.PositionOpened(ctx, pos)
	e.strategies.OnFill(*fill)
	e.markOpportunity(ctx, sig.TokenAddress, domain.OpportunityTraded)
	e.recordTrade(ctx, decision, fill, pos.ID)
}

// executeClose drives one close request through the lighter risk path.
func (e *Engine) executeClose(ctx context.Context, req position.CloseRequest, view *domain.AggregatedView) {
	decision := e.risk.EvaluateClose(req.Position, req.Reason, req.Price)
	e.reporter.DecisionMade(ctx, decision)

	e.positions.MarkClosing(ctx, req.Position.ID)

	fill, err := e.exec.Execute(ctx, decision, view)
	if err != nil {
		e.log.Warn("close execution failed",
			zap.String("position", req.Position.ID),
			zap.Error(err))
		// Leave the position open; the next tick retries with a fresh
		// decision id.
		e.positions.MarkOpen(ctx, req.Position.ID)
		return
	}

	exitPrice := req.Price
	if fill != nil {
		exitPrice = fill.Price
	}
	closed, ok := e.positions.Close(ctx, req.Position.ID, exitPrice, req.Reason)
	if !ok {
		return
	}
	e.strategies.OnClose(closed)
	e.reporter.PositionClosed(ctx, closed)
	e.markOpportunity(ctx, req.Position.Symbol, domain.OpportunityClosed)
	if fill != nil {
		e.recordTrade(ctx, decision, fill, req.Position.ID)
	}
}

func (e *Engine) recordTrade(ctx context.Context, decision *domain.Decision, fill *domain.Fill, positionID string) {
	if e.trades == nil {
		return
	}
	record := &domain.TradeRecord{
		TradeID:     idhash.ComputePositionID(decision.DecisionID, fill.Signature),
		DecisionID:  decision.DecisionID,
		PositionID:  positionID,
		Symbol:      fill.Symbol,
		StrategyID:  fill.StrategyID,
		Action:      decision.Signal.Action,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		FeeLamports: fill.FeeLamports,
		Signature:   fill.Signature,
		BundleID:    fill.BundleID,
		ExecutedAt:  fill.FilledAt,
	}
	if err := e.trades.Insert(ctx, record); err != nil && err != storage.ErrDuplicateKey {
		e.log.Warn("trade not recorded", zap.String("trade", record.TradeID), zap.Error(err))
	}
}

func (e *Engine) markOpportunity(ctx context.Context, address string, status domain.OpportunityStatus) {
	if address == "" {
		return
	}
	if err := e.hub.UpdateOpportunityStatus(ctx, address, status, e.now()); err != nil {
		e.log.Debug("opportunity status not updated",
			zap.String("address", address), zap.Error(err))
	}
}

// marketConditions updates the per-symbol history and derives momentum
// and volatility inputs.
func (e *Engine) marketConditions(symbol string, view *domain.AggregatedView) (strategy.MarketConditions, *symbolState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.watch[symbol]
	if !ok {
		state = &symbolState{address: symbol}
		e.watch[symbol] = state
	}

	market := strategy.MarketConditions{
		PrevPrice:      state.prevPrice,
		PrevVolume:     state.prevVolume,
		Volatility:     relativeVolatility(state.prices),
		LiquidityDepth: view.LiquidityDepth,
	}

	state.prevPrice = view.ConsensusPrice
	state.prevVolume = view.Volume
	state.prices = append(state.prices, view.ConsensusPrice)
	if len(state.prices) > priceHistoryLen {
		state.prices = state.prices[len(state.prices)-priceHistoryLen:]
	}
	return market, state
}

// relativeVolatility is the standard deviation of simple returns over the
// price window.
func relativeVolatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, prices[i]/prices[i-1]-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// tokenMetadata asks the providers in order until one answers.
func (e *Engine) tokenMetadata(ctx context.Context, address string) *domain.TokenMetadata {
	if address == "" {
		return nil
	}
	for _, provider := range e.metadata {
		meta, err := provider.TokenMetadata(ctx, address)
		if err == nil && meta != nil {
			return meta
		}
	}
	return nil
}

// publishStatus writes bot:status and realtime:metrics snapshots.
func (e *Engine) publishStatus(ctx context.Context) {
	e.mu.Lock()
	running := e.running
	cycles := e.cycles
	lastMs := e.lastCycleMs
	var avgMs float64
	if cycles > 0 {
		avgMs = float64(e.cycleMsTotal) / float64(cycles)
	}
	startedAt := e.startedAt
	e.mu.Unlock()

	state := domain.EngineStopped
	if running {
		state = domain.EngineRunning
		if e.risk.Halted() {
			state = domain.EngineHalted
		}
	}

	status := &domain.BotStatus{
		State:         state,
		DryRun:        e.cfg.Bot.DryRun,
		PaperTrading:  e.cfg.Bot.PaperTrading,
		StartedAt:     startedAt,
		LastCycleAt:   e.now(),
		OpenPositions: e.risk.Snapshot().OpenPositionCount(),
		HaltReason:    e.risk.HaltReason(),
	}
	if err := e.hub.SaveBotStatus(ctx, status); err != nil {
		e.log.Debug("status not persisted", zap.Error(err))
	}

	metrics := &domain.RealtimeMetrics{
		CycleCount:  cycles,
		LastCycleMs: lastMs,
		AvgCycleMs:  avgMs,
		UpdatedAt:   e.now(),
	}
	if e.stream != nil {
		metrics.EventsDropped = e.stream.Dropped()
	}
	if err := e.hub.SaveRealtimeMetrics(ctx, metrics); err != nil {
		e.log.Debug("metrics not persisted", zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.OpenPositions.Set(float64(status.OpenPositions))
		if e.stream != nil {
			e.metrics.PriceUpdatesDropped.Add(0) // keep the series present
		}
	}
}
