package ml

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
)

const (
	kmeansMaxIter = 300
	kmeansTol     = 1e-4
	// kmeansInits is the number of k-means++ restarts; the lowest-inertia run wins.
	kmeansInits = 4
)

// KMeans is a fitted k-means partition.
type KMeans struct {
	K         int
	Centroids [][]float64
	Inertia   float64
}

func sqDist(a, b []float64) float64 {
	var d float64
	for i := range a {
		t := a[i] - b[i]
		d += t * t
	}
	return d
}

// Predict returns the index of the centroid nearest to x. Ties go to the
// lower index.
func (m *KMeans) Predict(x []float64) int {
	best, bestD := 0, math.Inf(1)
	for c, centroid := range m.Centroids {
		if d := sqDist(x, centroid); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

// Labels assigns every row of x to its nearest centroid.
func (m *KMeans) Labels(x [][]float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = m.Predict(row)
	}
	return out
}

// FitKMeans partitions x into k clusters. The result is fully determined
// by x, k and seed.
func FitKMeans(ctx context.Context, x [][]float64, k int, seed uint64) (*KMeans, error) {
	if len(x) == 0 {
		return nil, errors.New("kmeans: no samples")
	}
	if k < 1 {
		return nil, errors.New("kmeans: k must be positive")
	}

	var best *KMeans
	for run := 0; run < kmeansInits; run++ {
		rng := rand.New(rand.NewPCG(seed, uint64(k)<<8|uint64(run)))
		m, err := lloyd(ctx, x, seedCentroids(x, k, rng))
		if err != nil {
			return nil, err
		}
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	return best, nil
}

// seedCentroids picks k starting centroids with k-means++ D² sampling.
func seedCentroids(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(x[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i := range x {
		d2[i] = sqDist(x[i], centroids[0])
	}
	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		next := rng.IntN(n)
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range d2 {
				r -= d
				if r <= 0 && d > 0 {
					next = i
					break
				}
			}
		}
		c := clone(x[next])
		centroids = append(centroids, c)
		for i := range x {
			if d := sqDist(x[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

func lloyd(ctx context.Context, x [][]float64, centroids [][]float64) (*KMeans, error) {
	k, dims := len(centroids), len(x[0])
	m := &KMeans{K: k, Centroids: centroids}
	labels := make([]int, len(x))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < kmeansMaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed := false
		for i, row := range x {
			if c := m.Predict(row); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, row := range x {
			c := labels[i]
			counts[c]++
			for j, v := range row {
				sums[c][j] += v
			}
		}

		var shift float64
		for c := range m.Centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			shift = math.Max(shift, sqDist(sums[c], m.Centroids[c]))
			m.Centroids[c] = sums[c]
		}
		if shift <= kmeansTol*kmeansTol {
			break
		}
	}

	for _, row := range x {
		m.Inertia += sqDist(row, m.Centroids[m.Predict(row)])
	}
	return m, nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// distinct counts the different labels in labels.
func distinct(labels []int) int {
	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
