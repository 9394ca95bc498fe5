package ml

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/kalambet/moodtrack/internal/storage"
)

const (
	// MinRegressionRows is the history length below which the regressor is
	// a stub that always answers NeutralMood.
	MinRegressionRows = 8
	// TrainFraction is the chronological share of pairs used for fitting.
	// The remaining tail is held out.
	TrainFraction = 0.8
)

// TrainRegressor fits a forest mapping day t's standardized features to
// day t+1's mood. xs must hold one standardized row per entry, in the same
// chronological order.
func TrainRegressor(ctx context.Context, entries []storage.Entry, xs *mat.Dense, opts ForestOptions) (*Forest, error) {
	if xs == nil {
		return nil, errors.New("train regressor: no samples")
	}
	_, cols := xs.Dims()

	if len(entries) < MinRegressionRows {
		return FitForest(ctx, [][]float64{make([]float64, cols)}, []float64{NeutralMood}, opts)
	}

	x := rows(xs)
	pairs := len(entries) - 1
	y := make([]float64, pairs)
	for i := range y {
		y[i] = float64(entries[i+1].Mood)
	}
	split := int(float64(pairs) * TrainFraction)
	return FitForest(ctx, x[:split], y[:split], opts)
}
