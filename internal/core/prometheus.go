package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation timings, result counters, and
// rule violation counters through a prometheus registry.
type PrometheusMetricsRecorder struct {
	durations  *prometheus.HistogramVec
	results    *prometheus.CounterVec
	violations *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors with the
// supplied registerer. A nil registerer falls back to the default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "limscore",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Duration of service operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limscore",
		Subsystem: "service",
		Name:      "operation_results_total",
		Help:      "Count of service operation outcomes by status.",
	}, []string{"operation", "status"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limscore",
		Subsystem: "service",
		Name:      "rule_violations_total",
		Help:      "Count of rule violations by operation, rule, and severity.",
	}, []string{"operation", "rule", "severity"})

	for _, c := range []prometheus.Collector{durations, results, violations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &PrometheusMetricsRecorder{durations: durations, results: results, violations: violations}, nil
}

// Observe records a single operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// ObserveViolations counts rule violations labeled by rule and severity.
func (r *PrometheusMetricsRecorder) ObserveViolations(_ context.Context, operation string, violations []Violation) {
	for _, v := range violations {
		r.violations.WithLabelValues(operation, v.Rule, string(v.Severity)).Inc()
	}
}
