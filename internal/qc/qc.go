// Package qc implements control-chart classification and summary statistics
// for quality-control measurements.
package qc

import (
	"math"

	"limscore/pkg/domain"
)

// Limits describes the control bounds a measurement is judged against. Action
// bounds are mandatory; warning bounds are optional and, when set, define a
// band inside the action bounds where values pass with a warning.
type Limits struct {
	LowerAction  float64
	UpperAction  float64
	LowerWarning *float64
	UpperWarning *float64
}

// Classify judges a measurement against its limits: outside the action bounds
// fails, outside the warning bounds (when defined) warns, everything else
// passes.
func Classify(value float64, limits Limits) domain.QCResult {
	if value < limits.LowerAction || value > limits.UpperAction {
		return domain.QCFail
	}
	if limits.LowerWarning != nil && value < *limits.LowerWarning {
		return domain.QCWarning
	}
	if limits.UpperWarning != nil && value > *limits.UpperWarning {
		return domain.QCWarning
	}
	return domain.QCPass
}

// Summary aggregates a series of control-chart points.
type Summary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Summarize computes mean, population standard deviation, and range over the
// points. An empty series yields a zero summary.
func Summarize(points []float64) Summary {
	if len(points) == 0 {
		return Summary{}
	}
	sum := 0.0
	min := points[0]
	max := points[0]
	for _, v := range points {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(points))
	variance := 0.0
	for _, v := range points {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(points))
	return Summary{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    min,
		Max:    max,
		Count:  len(points),
	}
}
