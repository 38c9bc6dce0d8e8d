package qc

import (
	"math"
	"testing"

	"limscore/pkg/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestClassifyAgainstWarningBand(t *testing.T) {
	limits := Limits{
		LowerAction:  80,
		UpperAction:  120,
		LowerWarning: floatPtr(90),
		UpperWarning: floatPtr(110),
	}

	cases := []struct {
		value float64
		want  domain.QCResult
	}{
		{100, domain.QCPass},
		{90, domain.QCPass},
		{110, domain.QCPass},
		{85, domain.QCWarning},
		{115, domain.QCWarning},
		{75, domain.QCFail},
		{125, domain.QCFail},
		{80, domain.QCWarning},
		{120, domain.QCWarning},
	}
	for _, tc := range cases {
		if got := Classify(tc.value, limits); got != tc.want {
			t.Fatalf("classify(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestClassifyWithoutWarningBand(t *testing.T) {
	limits := Limits{LowerAction: 80, UpperAction: 120}
	if got := Classify(85, limits); got != domain.QCPass {
		t.Fatalf("expected pass inside action bounds, got %s", got)
	}
	if got := Classify(79.9, limits); got != domain.QCFail {
		t.Fatalf("expected fail below action bound, got %s", got)
	}
}

func TestSummarizePopulationStdDev(t *testing.T) {
	summary := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if summary.Count != 8 {
		t.Fatalf("expected count 8, got %d", summary.Count)
	}
	if summary.Mean != 5 {
		t.Fatalf("expected mean 5, got %v", summary.Mean)
	}
	// population standard deviation divides by N, not N-1
	if math.Abs(summary.StdDev-2) > 1e-9 {
		t.Fatalf("expected std dev 2, got %v", summary.StdDev)
	}
	if summary.Min != 2 || summary.Max != 9 {
		t.Fatalf("unexpected range [%v, %v]", summary.Min, summary.Max)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(nil); got != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}
