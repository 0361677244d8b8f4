// Package metrics exposes trading counters to Prometheus. A nil *Metrics is a
// valid no-op so tests and tools can skip registration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signal_trader"

type Metrics struct {
	decisions     *prometheus.CounterVec
	riskRejected  *prometheus.CounterVec
	orderAttempts *prometheus.CounterVec
	orderFailures *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cyclesSkipped prometheus.Counter
	dailyPnL      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Combined decisions by action.",
		}, []string{"symbol", "action"}),
		riskRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_rejections_total",
			Help: "Decisions blocked by the risk gate, by reason.",
		}, []string{"reason"}),
		orderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_attempts_total",
			Help: "Broker placement attempts by outcome.",
		}, []string{"outcome"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_failures_total",
			Help: "Decisions that ended without an acknowledged order.",
		}, []string{"kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Operator alerts raised, by kind.",
		}, []string{"kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_skipped_total",
			Help: "Ticks skipped because a cycle was still running.",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_pnl",
			Help: "Realized P&L for the current IST day.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.riskRejected, m.orderAttempts, m.orderFailures,
			m.alerts, m.cycleDuration, m.cyclesSkipped, m.dailyPnL)
	}
	return m
}

func (m *Metrics) Decision(symbol, action string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(symbol, action).Inc()
}

func (m *Metrics) RiskRejected(reason string) {
	if m == nil {
		return
	}
	m.riskRejected.WithLabelValues(reason).Inc()
}

// OrderAttempt records one broker call: "ok", "transient" or "terminal".
func (m *Metrics) OrderAttempt(outcome string) {
	if m == nil {
		return
	}
	m.orderAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderFailed(kind string) {
	if m == nil {
		return
	}
	m.orderFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

func (m *Metrics) CycleDone(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cyclesSkipped.Inc()
}

func (m *Metrics) SetDailyPnL(v float64) {
	if m == nil {
		return
	}
	m.dailyPnL.Set(v)
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
