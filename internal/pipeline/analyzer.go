package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/moodtrack/internal/analytics"
	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/metrics"
	"github.com/kalambet/moodtrack/internal/ml"
	"github.com/kalambet/moodtrack/internal/modelstore"
	"github.com/kalambet/moodtrack/internal/storage"
)

// EntryLister is the read side of the record store the analyzer needs.
type EntryLister interface {
	ListEntries(ctx context.Context, f storage.EntryFilter) ([]storage.Entry, error)
}

// ErrRetrainTimeout is returned when a retraining run exceeds Options.Timeout.
var ErrRetrainTimeout = errors.New("retraining timed out")

// Options tunes training.
type Options struct {
	Seed     uint64
	Trees    int
	MaxDepth int
	Timeout  time.Duration // upper bound on one retraining run (default 2m)
}

// Analyzer ties the record store, the model store and the ML core
// together. Every read operation loads the full entry history and the
// current artifact set afresh.
type Analyzer struct {
	entries EntryLister
	models  *modelstore.Store
	opts    Options
	metrics *metrics.Metrics
	flight  singleflight.Group
	now     func() time.Time
}

// NewAnalyzer creates an Analyzer reading entries from entries and
// persisting artifacts in models.
func NewAnalyzer(entries EntryLister, models *modelstore.Store, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Analyzer{
		entries: entries,
		models:  models,
		opts:    opts,
		metrics: metrics.Get(),
		now:     time.Now,
	}
}

// Retrain fits fresh models on every stored entry and makes them current.
// Concurrent calls share a single run. The run is not tied to the
// caller's context: a caller that gives up gets ctx.Err() while training
// finishes for everyone else, bounded by Options.Timeout.
func (a *Analyzer) Retrain(ctx context.Context) (modelstore.Metadata, error) {
	ch := a.flight.DoChan("retrain", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.Timeout)
		defer cancel()
		meta, err := a.retrain(runCtx)
		if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrRetrainTimeout, a.opts.Timeout, err)
		}
		return meta, err
	})
	select {
	case <-ctx.Done():
		return modelstore.Metadata{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return modelstore.Metadata{}, res.Err
		}
		return res.Val.(modelstore.Metadata), nil
	}
}

func (a *Analyzer) retrain(ctx context.Context) (meta modelstore.Metadata, err error) {
	start := time.Now()
	result := metrics.ResultTrained
	defer func() {
		if err != nil {
			result = metrics.ResultError
			slog.Error("retraining failed", "error", err)
		}
		a.metrics.ObserveRetrain(result, time.Since(start).Seconds())
	}()

	entries, err := a.entries.ListEntries(ctx, storage.EntryFilter{})
	if err != nil {
		return meta, fmt.Errorf("loading entries: %w", err)
	}

	if len(entries) == 0 {
		result = metrics.ResultNoData
		meta = modelstore.NoData()
		if err := a.models.SaveMeta(meta); err != nil {
			return modelstore.Metadata{}, err
		}
		if err := a.models.Clear(); err != nil {
			return modelstore.Metadata{}, err
		}
		slog.Info("retraining skipped: no entries")
		return meta, nil
	}

	res, err := ml.Train(ctx, entries, ml.TrainOptions{
		Seed:     a.opts.Seed,
		Trees:    a.opts.Trees,
		MaxDepth: a.opts.MaxDepth,
	})
	if err != nil {
		return meta, err
	}
	now := a.now().UTC()
	meta = modelstore.Metadata{
		UpdatedAt: &now,
		K:         res.K,
		Features:  features.Names(),
		Corr:      analytics.Correlate(entries),
	}
	id, err := a.models.Save(res.Set, meta)
	if err != nil {
		return modelstore.Metadata{}, fmt.Errorf("saving models: %w", err)
	}
	meta.SetID = id
	a.metrics.ClusterCount.Set(float64(res.K))

	slog.Info("models retrained",
		"set", id,
		"k", res.K,
		"entries", len(entries),
		"duration", time.Since(start),
	)
	return meta, nil
}

// Metadata returns the record written by the last retraining run.
func (a *Analyzer) Metadata() (modelstore.Metadata, bool, error) {
	return a.models.LoadMeta()
}

// Predict forecasts the mood following the latest entry. asOf is accepted
// for API compatibility; the latest entry is always used.
func (a *Analyzer) Predict(ctx context.Context, asOf *time.Time) (ml.Prediction, error) {
	if asOf != nil {
		slog.Debug("prediction date ignored, using latest entry", "as_of", asOf.Format(storage.DateLayout))
	}
	entries, err := a.entries.ListEntries(ctx, storage.EntryFilter{})
	if err != nil {
		return ml.Prediction{}, fmt.Errorf("loading entries: %w", err)
	}

	p, err := ml.Predict(entries, a.models.Load())
	if err != nil {
		return ml.Prediction{}, err
	}
	if p.Basis != ml.BasisModel {
		slog.Debug("prediction without model", "basis", p.Basis, "entries", len(entries))
		a.metrics.Fallback("predict", p.Basis)
	}
	a.metrics.PredictedMood.Observe(p.PredictedMood)
	return p, nil
}

// Clusters assigns every entry to a named cluster.
func (a *Analyzer) Clusters(ctx context.Context) (ml.ClusterReport, error) {
	entries, err := a.entries.ListEntries(ctx, storage.EntryFilter{})
	if err != nil {
		return ml.ClusterReport{}, fmt.Errorf("loading entries: %w", err)
	}
	art := a.models.Load()
	if u, ok := art.(ml.Untrained); ok && len(entries) > 0 {
		slog.Debug("labelling clusters by mood threshold", "reason", u.Reason)
		a.metrics.Fallback("clusters", "untrained")
	}
	return ml.LabelClusters(entries, art)
}

// Insights summarises the strongest lifestyle factors.
func (a *Analyzer) Insights(ctx context.Context) (analytics.Insight, error) {
	entries, err := a.entries.ListEntries(ctx, storage.EntryFilter{})
	if err != nil {
		return analytics.Insight{}, fmt.Errorf("loading entries: %w", err)
	}
	return analytics.Insights(entries), nil
}

// Summary aggregates the entries inside f's window.
func (a *Analyzer) Summary(ctx context.Context, f storage.EntryFilter) (analytics.Summary, error) {
	entries, err := a.entries.ListEntries(ctx, f)
	if err != nil {
		return analytics.Summary{}, fmt.Errorf("loading entries: %w", err)
	}
	return analytics.Summarize(entries), nil
}
