package mlmodel

import "gonum.org/v1/gonum/stat"

// StandardScaler standardizes feature columns to zero mean and unit variance.
// It is an explicit value object: Fit is called once on the training split and
// the fitted parameters are reused verbatim at inference time, never refit.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column mean and standard deviation.
func (s *StandardScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	p := len(rows[0])
	s.Mean = make([]float64, p)
	s.Std = make([]float64, p)

	col := make([]float64, len(rows))
	for j := 0; j < p; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		if len(col) > 1 {
			s.Std[j] = stat.StdDev(col, nil)
		}
		if s.Std[j] == 0 {
			// Constant column; leave it centered instead of dividing by zero.
			s.Std[j] = 1
		}
	}
}

// Fitted reports whether Fit has run.
func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) > 0
}

// Transform returns a scaled copy of the rows using the fitted parameters.
func (s *StandardScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j < len(s.Mean) {
				scaled[j] = (v - s.Mean[j]) / s.Std[j]
			} else {
				scaled[j] = v
			}
		}
		out[i] = scaled
	}
	return out
}
