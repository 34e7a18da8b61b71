package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluator instruments the evaluation pipeline. Metrics are created
// unregistered so tests can construct them freely; MustRegister wires
// them to a registry at startup.
type Evaluator struct {
	CyclesTotal       prometheus.Counter
	CyclesThrottled   prometheus.Counter
	CyclesSkipped     *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	QuoteCalls        prometheus.Counter
	QuoteErrors       prometheus.Counter
	TrialsSkipped     prometheus.Counter
	Opportunities     prometheus.Counter
	Dispatches        prometheus.Counter
	BestNetProfitUSD  prometheus.Gauge
	SpreadPercent     prometheus.Gauge
}

// NewEvaluator creates evaluator metrics.
func NewEvaluator(namespace string) *Evaluator {
	return &Evaluator{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of evaluation cycles run",
		}),
		CyclesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_throttled_total",
			Help:      "Evaluation requests dropped by the throttle",
		}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      "Evaluation cycles skipped by reason",
		}, []string{"reason"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of evaluation cycles",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		QuoteCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calls_total",
			Help:      "Executable quote calls issued",
		}),
		QuoteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_errors_total",
			Help:      "Executable quote calls that failed",
		}),
		TrialsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_skipped_total",
			Help:      "Trial loan sizes skipped for missing liquidity or failed quotes",
		}),
		Opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Opportunities with positive net profit",
		}),
		Dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Opportunities handed to the executor",
		}),
		BestNetProfitUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_net_profit_usd",
			Help:      "Net profit of the best opportunity in the last cycle",
		}),
		SpreadPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread_percent",
			Help:      "Absolute cross-venue spread observed in the last cycle",
		}),
	}
}

// MustRegister registers all evaluator metrics with reg.
func (m *Evaluator) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.CyclesTotal, m.CyclesThrottled, m.CyclesSkipped, m.CycleDuration,
		m.QuoteCalls, m.QuoteErrors, m.TrialsSkipped,
		m.Opportunities, m.Dispatches, m.BestNetProfitUSD, m.SpreadPercent,
	)
}

// Source instruments the chain event source.
type Source struct {
	EventsTotal      prometheus.Counter
	EventsDeduped    prometheus.Counter
	UpdatesDropped   prometheus.Counter
	Reconnects       prometheus.Counter
	WatchdogRestarts prometheus.Counter
}

// NewSource creates event-source metrics.
func NewSource(namespace string) *Source {
	return &Source{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Swap/sync log events received",
		}),
		EventsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_deduped_total",
			Help:      "Replayed log events dropped by the dedupe filter",
		}),
		UpdatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Pool updates dropped because the evaluator channel was full",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "WebSocket reconnection attempts",
		}),
		WatchdogRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_restarts_total",
			Help:      "Subscription restarts triggered by the inactivity watchdog",
		}),
	}
}

// MustRegister registers all source metrics with reg.
func (m *Source) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.EventsTotal, m.EventsDeduped, m.UpdatesDropped, m.Reconnects, m.WatchdogRestarts)
}

// Handler serves a registry over HTTP for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
