package mlmodel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegressionMetrics(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	pred := []float64{1, 2, 3, 4}

	assert.InDelta(t, 0, RMSE(actual, pred), 1e-9)
	assert.InDelta(t, 0, MAE(actual, pred), 1e-9)
	assert.InDelta(t, 1, R2(actual, pred), 1e-9)

	off := []float64{2, 3, 4, 5}
	assert.InDelta(t, 1, RMSE(actual, off), 1e-9)
	assert.InDelta(t, 1, MAE(actual, off), 1e-9)
}

func TestR2_ConstantTarget(t *testing.T) {
	actual := []float64{5, 5, 5}
	pred := []float64{4, 5, 6}
	assert.Equal(t, 0.0, R2(actual, pred))
}

func TestSafeMetric(t *testing.T) {
	assert.Equal(t, 0.0, safeMetric(math.NaN()))
	assert.Equal(t, 0.0, safeMetric(math.Inf(1)))
	assert.Equal(t, 1.5, safeMetric(1.5))
}

func TestConfidenceScores_Bounds(t *testing.T) {
	scores := ConfidenceScores([]float64{1, 2, 5, 10, 50})
	for i, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, "index %d", i)
		assert.LessOrEqual(t, s, 1.0, "index %d", i)
	}
	// Lower uncertainty means higher confidence
	assert.Greater(t, scores[0], scores[3])
}

func TestConfidenceScores_UniformUncertainty(t *testing.T) {
	// Equal uncertainty across the batch carries no relative signal, so
	// every prediction is treated as fully trustworthy within the batch.
	for _, u := range []float64{0, 3.7} {
		scores := ConfidenceScores([]float64{u, u, u, u})
		for i, s := range scores {
			assert.Equal(t, 1.0, s, "uncertainty %v index %d", u, i)
		}
	}
}

func TestConfidenceScores_Empty(t *testing.T) {
	assert.Empty(t, ConfidenceScores(nil))
}
