package ml

import "math"

// Silhouette returns the mean silhouette coefficient of a labelled sample,
// using Euclidean distance. ok is false when the score is undefined: fewer
// than two clusters, or every sample in a cluster of its own.
func Silhouette(x [][]float64, labels []int) (score float64, ok bool) {
	n := len(x)
	k := distinct(labels)
	if k < 2 || k > n-1 {
		return 0, false
	}

	sizes := make(map[int]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	var total float64
	sums := make(map[int]float64, k)
	for i := range x {
		clear(sums)
		for j := range x {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(x[i], x[j]))
		}
		own := labels[i]
		if sizes[own] == 1 {
			continue // singleton clusters score 0
		}
		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for l, size := range sizes {
			if l == own {
				continue
			}
			b = math.Min(b, sums[l]/float64(size))
		}
		if d := math.Max(a, b); d > 0 {
			total += (b - a) / d
		}
	}
	return total / float64(n), true
}
