package daemon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the daemon's Prometheus metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry            prometheus.Registerer
	compactionsStarted  *prometheus.CounterVec
	compactionsFinished *prometheus.CounterVec
	compactionDuration  *prometheus.HistogramVec
	inProgress          prometheus.Gauge
	tickDuration        prometheus.Histogram
	rulesActive         prometheus.Gauge
}

// InitMetrics registers the daemon's metrics under the given namespace.
func InitMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		compactionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compactions_started_total",
				Help:      "Total number of compactions dispatched",
			},
			[]string{"kind"},
		),
		compactionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compactions_finished_total",
				Help:      "Total number of compactions finished",
			},
			[]string{"kind", "status"},
		),
		compactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compaction_duration_seconds",
				Help:      "Duration of compactions",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"kind"},
		),
		inProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "compactions_in_progress",
				Help:      "Number of compactions currently running",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_tick_duration_seconds",
				Help:      "Duration of daemon check ticks",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5},
			},
		),
		rulesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rules_active",
				Help:      "Number of rules in the active rule set",
			},
		),
	}

	reg.MustRegister(
		m.compactionsStarted,
		m.compactionsFinished,
		m.compactionDuration,
		m.inProgress,
		m.tickDuration,
		m.rulesActive,
	)
	return m
}

func (m *Metrics) recordStarted(kind UnitKind, running int) {
	if m == nil {
		return
	}
	m.compactionsStarted.WithLabelValues(kind.String()).Inc()
	m.inProgress.Set(float64(running))
}

func (m *Metrics) recordFinished(kind UnitKind, err error, d time.Duration, running int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.compactionsFinished.WithLabelValues(kind.String(), status).Inc()
	m.compactionDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	m.inProgress.Set(float64(running))
}

func (m *Metrics) recordTick(d time.Duration, rules int) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.rulesActive.Set(float64(rules))
}
