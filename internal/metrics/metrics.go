// Package metrics exposes Prometheus instrumentation for the watch daemon.
//
// Metrics exposed:
//   - dormpower_balance_kwh: Gauge of the last extracted balance per dorm
//   - dormpower_days_remaining: Gauge of projected days until empty per dorm
//     (-1 while data is insufficient, +Inf when consumption is flat)
//   - dormpower_fetch_errors_total: Counter of failed polls by dorm and reason
//   - dormpower_poll_seconds: Histogram of per-dorm poll duration
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jgoulah/dormpower/pkg/trend"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	BalanceKWh    *prometheus.GaugeVec
	DaysRemaining *prometheus.GaugeVec
	FetchErrors   *prometheus.CounterVec
	PollSeconds   prometheus.Histogram
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BalanceKWh: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dormpower_balance_kwh",
			Help: "Remaining electricity balance in kWh",
		}, []string{"dorm"}),

		DaysRemaining: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dormpower_days_remaining",
			Help: "Projected days until the balance is exhausted",
		}, []string{"dorm"}),

		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dormpower_fetch_errors_total",
			Help: "Total number of failed polls by dorm and reason",
		}, []string{"dorm", "reason"}),

		PollSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dormpower_poll_seconds",
			Help:    "Time spent fetching and processing one dorm",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordPoll records the time spent polling one dorm.
func (m *Metrics) RecordPoll(seconds float64) {
	m.PollSeconds.Observe(seconds)
}

// SetBalance sets the current balance for a dorm.
func (m *Metrics) SetBalance(dorm string, kwh float64) {
	m.BalanceKWh.WithLabelValues(dorm).Set(kwh)
}

// SetPrediction sets the days-remaining gauge from a prediction.
func (m *Metrics) SetPrediction(dorm string, p trend.Prediction) {
	var v float64
	switch p.Kind {
	case trend.Predict:
		v = p.Days
	case trend.Sufficient:
		v = math.Inf(1)
	default:
		v = -1
	}
	m.DaysRemaining.WithLabelValues(dorm).Set(v)
}

// Forget drops a dorm's balance and prediction series so a dorm that is no
// longer polled stops reporting its last value.
func (m *Metrics) Forget(dorm string) {
	m.BalanceKWh.DeleteLabelValues(dorm)
	m.DaysRemaining.DeleteLabelValues(dorm)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(dorm, reason string) {
	m.FetchErrors.WithLabelValues(dorm, reason).Inc()
}
