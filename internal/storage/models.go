package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateDate is returned when an entry already exists for a calendar date.
var ErrDuplicateDate = errors.New("entry for this date already exists")

// DateLayout is the storage and wire format of an entry date.
const DateLayout = "2006-01-02"

// Entry is one calendar day's logged mood and lifestyle metrics.
// At most one entry exists per date.
type Entry struct {
	ID         int64
	Date       time.Time // midnight UTC of the calendar day
	Mood       int       // 1..10
	SleepHours float64
	Steps      int
	Workouts   int // minutes
	Caffeine   int // mg
	Meals      int
	WorkHours  float64
	ScreenTime int // minutes
	Journal    string
	Tags       []string
}

// DateString returns the entry date as YYYY-MM-DD.
func (e Entry) DateString() string {
	return e.Date.Format(DateLayout)
}

// EntryFilter restricts ListEntries to an inclusive date window.
// Nil bounds are open.
type EntryFilter struct {
	From *time.Time
	To   *time.Time
}

// ParseDate parses a YYYY-MM-DD string into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
