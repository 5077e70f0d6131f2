// Package monitoring exposes Prometheus metrics for pipeline stages and
// summarizes recent pipeline runs.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	Processed   *prometheus.CounterVec
	Failed      *prometheus.CounterVec
	InFlight    *prometheus.GaugeVec
	RunDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venturesignal",
			Name:      "items_processed_total",
			Help:      "Companies successfully processed, by stage.",
		}, []string{"stage"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venturesignal",
			Name:      "items_failed_total",
			Help:      "Companies skipped after a per-item failure, by stage.",
		}, []string{"stage"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venturesignal",
			Name:      "tasks_in_flight",
			Help:      "External calls currently running, by stage.",
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "venturesignal",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline operations.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"operation", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Processed, m.Failed, m.InFlight, m.RunDuration)
	}
	return m
}
