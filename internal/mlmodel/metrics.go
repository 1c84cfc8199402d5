package mlmodel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds regression quality scores for the train and test splits.
type Metrics struct {
	TrainRMSE float64 `json:"train_rmse"`
	TrainMAE  float64 `json:"train_mae"`
	TrainR2   float64 `json:"train_r2"`
	TestRMSE  float64 `json:"test_rmse"`
	TestMAE   float64 `json:"test_mae"`
	TestR2    float64 `json:"test_r2"`
}

// RMSE computes root mean squared error over paired slices.
func RMSE(y, yhat []float64) float64 {
	n := len(y)
	if len(yhat) < n {
		n = len(yhat)
	}
	if n == 0 {
		return 0
	}
	var ss float64
	for i := 0; i < n; i++ {
		d := y[i] - yhat[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}

// MAE computes mean absolute error over paired slices.
func MAE(y, yhat []float64) float64 {
	n := len(y)
	if len(yhat) < n {
		n = len(yhat)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(y[i] - yhat[i])
	}
	return sum / float64(n)
}

// R2 computes the coefficient of determination.
func R2(y, yhat []float64) float64 {
	n := len(y)
	if len(yhat) < n {
		n = len(yhat)
	}
	if n == 0 {
		return 0
	}
	mean := stat.Mean(y[:n], nil)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		r := y[i] - yhat[i]
		t := y[i] - mean
		ssRes += r * r
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// safeMetric maps NaN/Inf to 0 so a degenerate split never poisons a report.
func safeMetric(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ConfidenceScores converts per-row uncertainty values into [0,1] confidence
// by normalizing against the batch's 95th-percentile uncertainty and
// inverting. Scores are relative to the current batch, not calibrated
// probabilities. When every uncertainty in the batch is equal there is zero
// relative uncertainty, so each row gets confidence 1; this also covers a
// zero 95th percentile without ever dividing by it.
func ConfidenceScores(uncertainties []float64) []float64 {
	out := make([]float64, len(uncertainties))
	if len(uncertainties) == 0 {
		return out
	}
	sorted := append([]float64(nil), uncertainties...)
	sort.Float64s(sorted)
	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)
	if p95 <= 0 || sorted[0] == sorted[len(sorted)-1] {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, u := range uncertainties {
		c := 1 - u/p95
		if c < 0 {
			c = 0
		} else if c > 1 {
			c = 1
		}
		out[i] = c
	}
	return out
}
