package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ForestOptions configures FitForest.
type ForestOptions struct {
	Trees           int    // number of trees (default 200)
	MaxDepth        int    // 0 grows until leaves are pure
	MinSamplesSplit int    // default 2
	Seed            uint64 // bootstrap seed
}

func (o ForestOptions) withDefaults() ForestOptions {
	if o.Trees <= 0 {
		o.Trees = 200
	}
	if o.MinSamplesSplit < 2 {
		o.MinSamplesSplit = 2
	}
	return o
}

// Node is a flattened regression tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees.
type Forest struct {
	Features int
	Trees    []Tree
}

// Predict averages the trees' predictions for x.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.Features {
		return 0, fmt.Errorf("forest fitted on %d features, got %d", f.Features, len(x))
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// FitForest grows opts.Trees trees, each on a bootstrap resample of (x, y)
// considering every feature at each split. Trees are grown concurrently;
// each draws from its own seeded stream so the result does not depend on
// scheduling.
func FitForest(ctx context.Context, x [][]float64, y []float64, opts ForestOptions) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("forest: no samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d samples but %d targets", len(x), len(y))
	}
	opts = opts.withDefaults()

	f := &Forest{Features: len(x[0]), Trees: make([]Tree, opts.Trees)}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range f.Trees {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(t)))
			idx := make([]int, len(x))
			for i := range idx {
				idx[i] = rng.IntN(len(x))
			}
			b := &treeBuilder{x: x, y: y, opts: opts}
			b.grow(idx, 0)
			f.Trees[t] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

type treeBuilder struct {
	x     [][]float64
	y     []float64
	opts  ForestOptions
	nodes []Node
}

// grow appends the subtree for idx and returns its root index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: sum / n})

	if len(idx) < b.opts.MinSamplesSplit || (b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth) {
		return self
	}
	parentSSE := sumSq - sum*sum/n
	if parentSSE <= 1e-12 {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, parentSSE)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

// bestSplit scans every feature for the threshold minimising the summed
// squared error of the two children. Ties keep the earliest feature.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (feature int, threshold float64, ok bool) {
	bestSSE := parentSSE - 1e-12
	sorted := make([]int, len(idx))
	for f := range b.x[0] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		var totalSum, totalSq float64
		for _, i := range sorted {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		var lSum, lSq float64
		for pos := 1; pos < len(sorted); pos++ {
			prev := sorted[pos-1]
			lSum += b.y[prev]
			lSq += b.y[prev] * b.y[prev]

			lo, hi := b.x[prev][f], b.x[sorted[pos]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(pos), float64(len(sorted)-pos)
			rSum, rSq := totalSum-lSum, totalSq-lSq
			sse := (lSq - lSum*lSum/nl) + (rSq - rSum*rSum/nr)
			if sse < bestSSE {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				bestSSE, feature, threshold, ok = sse, f, thr, true
			}
		}
	}
	return feature, threshold, ok
}
