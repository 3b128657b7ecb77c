package regression

import (
	"errors"
	"math"
)

// StandardScaler centers each column to zero mean and unit variance using the
// statistics of the data it was fitted on (population standard deviation).
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-column mean and scale. Zero-variance columns get scale 1.
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, errors.New("scaler: empty input")
	}
	n, p := len(X), len(X[0])

	mean := make([]float64, p)
	for _, row := range X {
		if len(row) != p {
			return nil, errors.New("scaler: ragged input")
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	scale := make([]float64, p)
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(n))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	return &StandardScaler{Mean: mean, Scale: scale}, nil
}

// Transform scales one row.
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll scales every row into a new matrix.
func (s *StandardScaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
