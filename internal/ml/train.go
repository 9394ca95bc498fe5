package ml

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

// TrainOptions configures a full retraining pass.
type TrainOptions struct {
	Seed     uint64
	Trees    int
	MaxDepth int
}

// TrainResult is a freshly fitted artifact set and its selected cluster count.
type TrainResult struct {
	Set ArtifactSet
	K   int
}

// Train fits the scaler on the whole history, then the cluster model and
// the regressor concurrently on the standardized features.
func Train(ctx context.Context, entries []storage.Entry, opts TrainOptions) (TrainResult, error) {
	if len(entries) == 0 {
		return TrainResult{}, errors.New("train: no entries")
	}
	x, err := features.Build(entries)
	if err != nil {
		return TrainResult{}, err
	}
	scaler := FitScaler(x)
	xs, err := scaler.Transform(x)
	if err != nil {
		return TrainResult{}, err
	}

	var (
		clusters  *KMeans
		k         int
		regressor *Forest
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clusters, k, err = TrainClusters(gCtx, xs, opts.Seed)
		if err != nil {
			return fmt.Errorf("training clusters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		regressor, err = TrainRegressor(gCtx, entries, xs, ForestOptions{
			Trees:    opts.Trees,
			MaxDepth: opts.MaxDepth,
			Seed:     opts.Seed,
		})
		if err != nil {
			return fmt.Errorf("training regressor: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return TrainResult{}, err
	}

	return TrainResult{
		Set: ArtifactSet{Scaler: scaler, Clusters: clusters, Regressor: regressor},
		K:   k,
	}, nil
}
