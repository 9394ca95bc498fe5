// Package seed generates synthetic mood history for demos and local
// development.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kalambet/moodtrack/internal/storage"
)

var (
	workoutChoices  = []int{0, 0, 20, 30, 45}
	caffeineChoices = []int{0, 80, 120, 200}
	journalLines    = []string{
		"Felt okay, walk helped.",
		"Deep work day.",
		"Low energy.",
		"Great sleep, solid focus.",
		"Too much screen before bed.",
	}
	tagPool = []string{"walk", "focus", "deadline", "social", "gym", "coffee", "screen"}
)

// Writer is the part of the record store seeding needs.
type Writer interface {
	CountEntries(ctx context.Context) (int, error)
	CreateEntry(ctx context.Context, e storage.Entry) (storage.Entry, error)
}

// Day draws one synthetic entry for date d. Mood loosely follows sleep,
// steps, screen time and caffeine plus gaussian noise.
func Day(d time.Time, rng *rand.Rand) storage.Entry {
	sleep := round1(5.5 + rng.Float64()*3)
	steps := 1500 + rng.IntN(12000-1500+1)
	workouts := workoutChoices[rng.IntN(len(workoutChoices))]
	caffeine := caffeineChoices[rng.IntN(len(caffeineChoices))]
	meals := 2 + rng.IntN(3)
	work := round1(6 + rng.Float64()*3)
	screen := 120 + rng.IntN(360-120+1)

	raw := 5 +
		0.4*(sleep-7) +
		0.0003*float64(steps-6000) -
		0.002*float64(screen-200) -
		0.002*float64(caffeine-120) +
		rng.NormFloat64()*1.2
	mood := max(1, min(10, int(raw)))

	first := rng.IntN(len(tagPool))
	second := rng.IntN(len(tagPool) - 1)
	if second >= first {
		second++
	}

	return storage.Entry{
		Date:       d,
		Mood:       mood,
		SleepHours: sleep,
		Steps:      steps,
		Workouts:   workouts,
		Caffeine:   caffeine,
		Meals:      meals,
		WorkHours:  work,
		ScreenTime: screen,
		Journal:    journalLines[rng.IntN(len(journalLines))],
		Tags:       []string{tagPool[first], tagPool[second]},
	}
}

// Synthetic returns days consecutive entries starting at start.
func Synthetic(start time.Time, days int, rng *rand.Rand) []storage.Entry {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]storage.Entry, 0, days)
	for i := range days {
		out = append(out, Day(start.AddDate(0, 0, i), rng))
	}
	return out
}

// Run fills an empty store with days of history ending yesterday
// relative to now. A store that already holds entries is left untouched
// and Run returns 0.
func Run(ctx context.Context, w Writer, now time.Time, days int, seed uint64) (int, error) {
	n, err := w.CountEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	if n > 0 {
		slog.Info("store already has entries, skipping seed", "entries", n)
		return 0, nil
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, e := range Synthetic(now.AddDate(0, 0, -days), days, rng) {
		if _, err := w.CreateEntry(ctx, e); err != nil {
			return 0, fmt.Errorf("seeding %s: %w", e.DateString(), err)
		}
	}
	slog.Info("seeded synthetic history", "days", days)
	return days, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
