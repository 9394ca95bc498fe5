package api

import (
	"context"
	"testing"
	"time"

	"github.com/kalambet/moodtrack/internal/modelstore"
	"github.com/kalambet/moodtrack/internal/pipeline"
	"github.com/kalambet/moodtrack/internal/storage"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	models, err := modelstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening model store: %v", err)
	}
	return Deps{
		Store:    store,
		Analyzer: pipeline.NewAnalyzer(store, models, pipeline.Options{Seed: 42, Trees: 10}),
	}
}

// seedEntries stores n consecutive days starting 2025-03-01.
func seedEntries(t *testing.T, store *storage.Store, n int) {
	t.Helper()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := storage.Entry{
			Date:       start.AddDate(0, 0, i),
			Mood:       1 + (i*7)%10,
			SleepHours: 5.5 + float64(i%6)*0.5,
			Steps:      2000 + (i*1300)%10000,
			Workouts:   []int{0, 20, 45}[i%3],
			Caffeine:   []int{0, 80, 120, 200}[i%4],
			Meals:      2 + i%3,
			WorkHours:  6 + float64(i%4),
			ScreenTime: 120 + (i*37)%240,
		}
		if _, err := store.CreateEntry(context.Background(), e); err != nil {
			t.Fatalf("seeding entry %d: %v", i, err)
		}
	}
}
