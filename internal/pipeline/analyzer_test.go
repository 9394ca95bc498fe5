package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/ml"
	"github.com/kalambet/moodtrack/internal/modelstore"
	"github.com/kalambet/moodtrack/internal/storage"
)

// --- mock entry lister ---

type mockLister struct {
	entries []storage.Entry
	err     error
	calls   atomic.Int32
	gate    chan struct{} // when non-nil, ListEntries blocks until closed
	started chan struct{}

	mu      sync.Mutex
	ctxErrs []error // ctx.Err() observed after each gated call
}

func (m *mockLister) ListEntries(ctx context.Context, f storage.EntryFilter) ([]storage.Entry, error) {
	if m.calls.Add(1) == 1 && m.started != nil {
		close(m.started)
	}
	if m.gate != nil {
		<-m.gate
		m.mu.Lock()
		m.ctxErrs = append(m.ctxErrs, ctx.Err())
		m.mu.Unlock()
	}
	if m.err != nil {
		return nil, m.err
	}
	var out []storage.Entry
	for _, e := range m.entries {
		if f.From != nil && e.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func history(n int) []storage.Entry {
	start := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	out := make([]storage.Entry, n)
	for i := range out {
		out[i] = storage.Entry{
			Date:       start.AddDate(0, 0, i),
			Mood:       1 + (i*7)%10,
			SleepHours: 5.5 + float64(i%6)*0.5,
			Steps:      2000 + (i*1300)%10000,
			Workouts:   []int{0, 0, 20, 30, 45}[i%5],
			Caffeine:   []int{0, 80, 120, 200}[i%4],
			Meals:      2 + i%3,
			WorkHours:  6 + float64(i%4),
			ScreenTime: 120 + (i*37)%240,
		}
	}
	return out
}

func newAnalyzer(t *testing.T, lister EntryLister) (*Analyzer, *modelstore.Store) {
	t.Helper()
	store, err := modelstore.Open(t.TempDir())
	require.NoError(t, err)
	return NewAnalyzer(lister, store, Options{Seed: 42, Trees: 15}), store
}

func TestRetrain_NoData(t *testing.T) {
	lister := &mockLister{entries: history(20)}
	a, store := newAnalyzer(t, lister)

	_, err := a.Retrain(context.Background())
	require.NoError(t, err)
	_, ok := store.Load().(ml.Trained)
	require.True(t, ok)

	lister.entries = nil
	meta, err := a.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, modelstore.NoData(), meta)

	_, ok = store.Load().(ml.Untrained)
	assert.True(t, ok, "artifacts must read as absent after a no-data retrain")

	saved, ok, err := a.Metadata()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "no data", saved.Message)
}

func TestRetrain_MetadataMatchesCurrentSet(t *testing.T) {
	a, store := newAnalyzer(t, &mockLister{entries: history(20)})

	for range 3 {
		meta, err := a.Retrain(context.Background())
		require.NoError(t, err)

		saved, ok, err := a.Metadata()
		require.NoError(t, err)
		require.True(t, ok)
		tr, isTrained := store.Load().(ml.Trained)
		require.True(t, isTrained)

		assert.Equal(t, meta.SetID, saved.SetID)
		assert.Equal(t, tr.ID, saved.SetID)
		assert.Equal(t, meta.K, saved.K)
	}
}

func TestRetrain_Trains(t *testing.T) {
	a, _ := newAnalyzer(t, &mockLister{entries: history(25)})
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	meta, err := a.Retrain(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, meta.K, ml.MinClusters)
	assert.LessOrEqual(t, meta.K, ml.MaxClusters)
	assert.Equal(t, features.Names(), meta.Features)
	assert.Len(t, meta.Corr, 7)
	require.NotNil(t, meta.UpdatedAt)
	assert.Equal(t, fixed, *meta.UpdatedAt)
	assert.NotEmpty(t, meta.SetID)

	p, err := a.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ml.BasisModel, p.Basis)
	assert.GreaterOrEqual(t, p.PredictedMood, 1.0)
	assert.LessOrEqual(t, p.PredictedMood, 10.0)

	report, err := a.Clusters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meta.K, report.K)
	assert.Len(t, report.Assignments, 25)
}

func TestRetrain_ListError(t *testing.T) {
	a, _ := newAnalyzer(t, &mockLister{err: errors.New("disk gone")})
	_, err := a.Retrain(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestRetrain_ConcurrentCallsShareOneRun(t *testing.T) {
	lister := &mockLister{
		entries: history(15),
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	a, store := newAnalyzer(t, lister)

	const callers = 6
	results := make([]modelstore.Metadata, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = a.Retrain(context.Background())
	}()
	<-lister.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = a.Retrain(context.Background())
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(lister.gate)
	wg.Wait()

	assert.Equal(t, int32(1), lister.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].SetID, results[i].SetID)
	}
	tr, ok := store.Load().(ml.Trained)
	require.True(t, ok)
	assert.Equal(t, results[0].SetID, tr.ID)
}

func TestRetrain_CallerCancelDoesNotAbortRun(t *testing.T) {
	lister := &mockLister{
		entries: history(12),
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	a, store := newAnalyzer(t, lister)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Retrain(ctx)
		done <- err
	}()
	<-lister.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(lister.gate)
	_, err := a.Retrain(context.Background())
	require.NoError(t, err)

	lister.mu.Lock()
	defer lister.mu.Unlock()
	require.NotEmpty(t, lister.ctxErrs)
	assert.NoError(t, lister.ctxErrs[0], "training context was cancelled")
	_, ok := store.Load().(ml.Trained)
	assert.True(t, ok)
}

func TestPredict_Fallbacks(t *testing.T) {
	lister := &mockLister{}
	a, _ := newAnalyzer(t, lister)

	p, err := a.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.PredictedMood)
	assert.Equal(t, ml.BasisNeutral, p.Basis)

	lister.entries = history(3)
	lister.entries[0].Mood, lister.entries[1].Mood, lister.entries[2].Mood = 4, 6, 9
	asOf := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err = a.Predict(context.Background(), &asOf)
	require.NoError(t, err)
	assert.Equal(t, 6.33, p.PredictedMood)
	assert.Equal(t, ml.BasisBaseline, p.Basis)
}

func TestClusters_WithoutModel(t *testing.T) {
	lister := &mockLister{entries: history(10)}
	a, _ := newAnalyzer(t, lister)

	report, err := a.Clusters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ml.FallbackClusters, report.K)
	total := 0
	for _, c := range report.Clusters {
		total += c.Days
	}
	assert.Equal(t, 10, total)
}

func TestSummaryAndInsights(t *testing.T) {
	lister := &mockLister{entries: history(14)}
	a, _ := newAnalyzer(t, lister)

	from := lister.entries[7].Date
	s, err := a.Summary(context.Background(), storage.EntryFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, s.WeeklyAverages, 1)
	assert.Equal(t, "last_period", s.WeeklyAverages[0].Label)
	assert.Equal(t, 0.0, s.DeltaVsPrev)

	in, err := a.Insights(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, in.Summary)
	assert.LessOrEqual(t, len(in.Recommendations), 3)
}

type slowLister struct{}

func (slowLister) ListEntries(ctx context.Context, _ storage.EntryFilter) ([]storage.Entry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRetrain_Timeout(t *testing.T) {
	store, err := modelstore.Open(t.TempDir())
	require.NoError(t, err)
	a := NewAnalyzer(slowLister{}, store, Options{Timeout: 20 * time.Millisecond})

	_, err = a.Retrain(context.Background())
	assert.ErrorIs(t, err, ErrRetrainTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
