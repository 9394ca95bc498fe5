// Package ml holds the model fitting and inference used by retraining,
// prediction and cluster labeling. Fitted models are plain structs so they
// can be persisted by the model store.
package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its training mean and scales it
// to unit population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler learns per-column statistics from x.
func FitScaler(x *mat.Dense) *StandardScaler {
	r, c := x.Dims()
	s := &StandardScaler{Mean: make([]float64, c), Scale: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean := stat.Mean(col, nil)
		var ss float64
		for _, v := range col {
			d := v - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(r))
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Transform returns a standardized copy of x.
func (s *StandardScaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out, nil
}

// TransformVec standardizes a single feature vector.
func (s *StandardScaler) TransformVec(v []float64) ([]float64, error) {
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), len(v))
	}
	out := make([]float64, len(v))
	for j, x := range v {
		out[j] = (x - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// rows returns the rows of x as slices sharing x's backing storage.
func rows(x *mat.Dense) [][]float64 {
	r, _ := x.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = x.RawRowView(i)
	}
	return out
}
