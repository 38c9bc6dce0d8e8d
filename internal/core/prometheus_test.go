package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ctx := context.Background()
	recorder.Observe(ctx, "create_prep_batch", true, 5*time.Millisecond)
	recorder.Observe(ctx, "create_prep_batch", false, 3*time.Millisecond)
	recorder.Observe(ctx, "", true, time.Millisecond)

	if got := promtest.ToFloat64(recorder.results.WithLabelValues("create_prep_batch", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := promtest.ToFloat64(recorder.results.WithLabelValues("create_prep_batch", "error")); got != 1 {
		t.Fatalf("expected one error, got %v", got)
	}
	if got := promtest.ToFloat64(recorder.results.WithLabelValues("", "success")); got != 0 {
		t.Fatalf("expected empty operation to be ignored, got %v", got)
	}

	recorder.ObserveViolations(ctx, "create_prep_batch", []Violation{
		{Rule: "batch_size_bounds", Severity: SeverityBlock},
		{Rule: "batch_size_bounds", Severity: SeverityBlock},
		{Rule: "qc_warning", Severity: SeverityWarn},
	})
	if got := promtest.ToFloat64(recorder.violations.WithLabelValues("create_prep_batch", "batch_size_bounds", "block")); got != 2 {
		t.Fatalf("expected two blocking violations, got %v", got)
	}
	if got := promtest.ToFloat64(recorder.violations.WithLabelValues("create_prep_batch", "qc_warning", "warn")); got != 1 {
		t.Fatalf("expected one warning violation, got %v", got)
	}
}

func TestPrometheusMetricsRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
