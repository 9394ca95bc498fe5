// Package features turns stored daily entries into the numeric feature
// matrix shared by correlation, clustering and regression.
package features

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kalambet/moodtrack/internal/storage"
)

// ErrInvalidRecord marks an entry that breaks the record contract
// (missing date or mood outside 1..10). It indicates a collaborator bug
// and is never absorbed into a fallback.
var ErrInvalidRecord = errors.New("invalid record")

// Feature names in matrix column order. The order is stable and persisted
// alongside trained artifacts.
const (
	SleepHours = "sleep_hours"
	Steps      = "steps"
	Workouts   = "workouts"
	Caffeine   = "caffeine"
	Meals      = "meals"
	WorkHours  = "work_hours"
	ScreenTime = "screen_time"
	Weekday    = "weekday"
)

var names = []string{SleepHours, Steps, Workouts, Caffeine, Meals, WorkHours, ScreenTime, Weekday}

// Count is the number of matrix columns.
const Count = 8

// Names returns the feature names in column order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Lifestyle returns the seven logged lifestyle features (weekday excluded)
// in column order.
func Lifestyle() []string {
	out := make([]string, len(names)-1)
	copy(out, names[:len(names)-1])
	return out
}

// WeekdayIndex maps a date to Monday=0 ... Sunday=6.
func WeekdayIndex(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// Validate checks the fields every entry must carry.
func Validate(e storage.Entry) error {
	if e.Date.IsZero() {
		return fmt.Errorf("%w: entry %d has no date", ErrInvalidRecord, e.ID)
	}
	if e.Mood < 1 || e.Mood > 10 {
		return fmt.Errorf("%w: entry %s has mood %d outside 1..10", ErrInvalidRecord, e.DateString(), e.Mood)
	}
	return nil
}

// Value returns the named lifestyle or weekday value of e.
func Value(e storage.Entry, name string) (float64, bool) {
	switch name {
	case SleepHours:
		return e.SleepHours, true
	case Steps:
		return float64(e.Steps), true
	case Workouts:
		return float64(e.Workouts), true
	case Caffeine:
		return float64(e.Caffeine), true
	case Meals:
		return float64(e.Meals), true
	case WorkHours:
		return e.WorkHours, true
	case ScreenTime:
		return float64(e.ScreenTime), true
	case Weekday:
		return float64(WeekdayIndex(e.Date)), true
	}
	return 0, false
}

// Vector returns the feature vector of a single entry in column order.
func Vector(e storage.Entry) ([]float64, error) {
	if err := Validate(e); err != nil {
		return nil, err
	}
	return []float64{
		e.SleepHours,
		float64(e.Steps),
		float64(e.Workouts),
		float64(e.Caffeine),
		float64(e.Meals),
		e.WorkHours,
		float64(e.ScreenTime),
		float64(WeekdayIndex(e.Date)),
	}, nil
}

// Build returns one row per entry, in input order. It returns a nil matrix
// for an empty input since gonum matrices cannot have zero rows.
func Build(entries []storage.Entry) (*mat.Dense, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	data := make([]float64, 0, len(entries)*Count)
	for _, e := range entries {
		v, err := Vector(e)
		if err != nil {
			return nil, err
		}
		data = append(data, v...)
	}
	return mat.NewDense(len(entries), Count, data), nil
}

// Moods returns the mood series of entries as floats.
func Moods(entries []storage.Entry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = float64(e.Mood)
	}
	return out
}
