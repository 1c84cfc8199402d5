package mlmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	s := StandardScaler{}
	assert.False(t, s.Fitted())

	rows := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	}
	s.Fit(rows)
	assert.True(t, s.Fitted())
	assert.InDelta(t, 2, s.Mean[0], 1e-9)
	assert.InDelta(t, 20, s.Mean[1], 1e-9)

	out := s.Transform(rows)
	// Column means become zero
	for j := 0; j < 2; j++ {
		var sum float64
		for i := range out {
			sum += out[i][j]
		}
		assert.InDelta(t, 0, sum/3, 1e-9, "column %d", j)
	}

	// The input rows are untouched
	assert.Equal(t, 1.0, rows[0][0])
	assert.Equal(t, 10.0, rows[0][1])
}

func TestStandardScaler_ConstantColumn(t *testing.T) {
	s := StandardScaler{}
	rows := [][]float64{{5, 1}, {5, 2}, {5, 3}}
	s.Fit(rows)

	// Zero spread falls back to unit scale instead of dividing by zero
	assert.InDelta(t, 1, s.Std[0], 1e-9)

	out := s.Transform(rows)
	for i := range out {
		assert.InDelta(t, 0, out[i][0], 1e-9)
	}
}

func TestStandardScaler_TransformDoesNotRefit(t *testing.T) {
	s := StandardScaler{}
	s.Fit([][]float64{{0}, {10}})

	out := s.Transform([][]float64{{20}})
	// Scaled with the fitted statistics, not the new batch's
	assert.InDelta(t, (20.0-5.0)/s.Std[0], out[0][0], 1e-9)
}
