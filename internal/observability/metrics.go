// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Stream metrics
	VenueEventsReceived *prometheus.CounterVec
	PriceUpdatesDropped prometheus.Counter

	// Aggregation metrics
	ViewsComputed     prometheus.Counter
	FusionSourceCount prometheus.Histogram
	ViewConfidence    prometheus.Histogram

	// Strategy metrics
	SignalsGenerated *prometheus.CounterVec

	// Risk metrics
	DecisionsTotal *prometheus.CounterVec
	EngineHalts    prometheus.Counter

	// Execution metrics
	OrdersSubmitted  *prometheus.CounterVec
	Fills            prometheus.Counter
	BundleTimeouts   prometheus.Counter
	ExecutionLatency prometheus.Histogram

	// Position metrics
	OpenPositions   prometheus.Gauge
	PositionsClosed *prometheus.CounterVec
	RealizedPnL     prometheus.Gauge

	// Engine metrics
	CycleDuration prometheus.Histogram
	HubDegraded   prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sniperbot"
	}

	return &Metrics{
		VenueEventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "venue_events_total",
			Help:      "Venue events received by kind",
		}, []string{"kind", "source"}),
		PriceUpdatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "price_updates_dropped_total",
			Help:      "Price updates discarded under backpressure",
		}),

		ViewsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "views_computed_total",
			Help:      "Aggregated views computed",
		}),
		FusionSourceCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "fusion_source_count",
			Help:      "Sources contributing to each fusion",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
		ViewConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "view_confidence",
			Help:      "Confidence of computed views",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_generated_total",
			Help:      "Signals emitted by strategy",
		}, []string{"strategy"}),

		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "decisions_total",
			Help:      "Risk decisions by verdict and reject reason",
		}, []string{"verdict", "reason"}),
		EngineHalts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "engine_halts_total",
			Help:      "Times the engine entered the halted state",
		}),

		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "orders_submitted_total",
			Help:      "Order submissions by route",
		}, []string{"route"}),
		Fills: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "fills_total",
			Help:      "Confirmed fills",
		}),
		BundleTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "bundle_timeouts_total",
			Help:      "Relay bundles that never reached a terminal status",
		}),
		ExecutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_latency_seconds",
			Help:      "Decision to terminal outcome latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open_positions",
			Help:      "Currently open positions",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "positions_closed_total",
			Help:      "Positions closed by reason",
		}, []string{"reason"}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_pnl",
			Help:      "Cumulative realized profit and loss",
		}),

		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Main loop cycle duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		HubDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "hub_degraded",
			Help:      "1 while the hub store is unreachable and writes buffer locally",
		}),
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
