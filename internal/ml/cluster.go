package ml

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Cluster-count search range. Daily behaviour settles into three to six
// regimes; below three points per cluster silhouette scores are noise.
const (
	MinClusters      = 3
	MaxClusters      = 6
	FallbackClusters = 3
)

type clusterCandidate struct {
	model *KMeans
	score float64
	ok    bool
}

// TrainClusters fits k-means for each k in [MinClusters, MaxClusters] and
// keeps the candidate with the highest silhouette. Candidates that collapse
// to fewer than two clusters, or whose silhouette is undefined, are skipped.
// If none survive, a FallbackClusters fit is returned unscored.
func TrainClusters(ctx context.Context, xs *mat.Dense, seed uint64) (*KMeans, int, error) {
	if xs == nil {
		return nil, 0, errors.New("train clusters: no samples")
	}
	x := rows(xs)

	candidates := make([]clusterCandidate, MaxClusters-MinClusters+1)
	g, gCtx := errgroup.WithContext(ctx)
	for i := range candidates {
		k := MinClusters + i
		g.Go(func() error {
			m, err := FitKMeans(gCtx, x, k, seed)
			if err != nil {
				return err
			}
			labels := m.Labels(x)
			if distinct(labels) < 2 {
				return nil
			}
			score, ok := Silhouette(x, labels)
			candidates[i] = clusterCandidate{model: m, score: score, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	bestK, bestScore := FallbackClusters, -1.0
	var best *KMeans
	for i, c := range candidates {
		if !c.ok {
			continue
		}
		if c.score > bestScore {
			best, bestK, bestScore = c.model, MinClusters+i, c.score
		}
	}
	if best != nil {
		return best, bestK, nil
	}

	m, err := FitKMeans(ctx, x, FallbackClusters, seed)
	if err != nil {
		return nil, 0, err
	}
	return m, FallbackClusters, nil
}
