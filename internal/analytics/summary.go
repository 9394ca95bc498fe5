package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

// PeriodAverage is the mean mood over a labelled window.
type PeriodAverage struct {
	Label   string  `json:"label"`
	AvgMood float64 `json:"avg_mood"`
}

// Summary describes a window of entries.
type Summary struct {
	AvgMood        float64         `json:"avg_mood"`
	DeltaVsPrev    float64         `json:"delta_vs_prev"`
	Corr           Correlations    `json:"corr"`
	WeeklyAverages []PeriodAverage `json:"weekly_averages"`
}

// Round2 rounds v to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MeanMood returns the arithmetic mean mood of entries, or 0 for none.
func MeanMood(entries []storage.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return stat.Mean(features.Moods(entries), nil)
}

// WeeklyAverages returns the mood average per window. Today the whole
// input is a single window labelled "last_period".
func WeeklyAverages(entries []storage.Entry) []PeriodAverage {
	if len(entries) == 0 {
		return []PeriodAverage{}
	}
	return []PeriodAverage{{Label: "last_period", AvgMood: Round2(MeanMood(entries))}}
}

// Summarize reports the average mood, correlations and period averages of
// entries. DeltaVsPrev is reserved for a previous-window comparison and is
// always 0.
func Summarize(entries []storage.Entry) Summary {
	if len(entries) == 0 {
		return Summary{Corr: Correlations{}, WeeklyAverages: []PeriodAverage{}}
	}
	return Summary{
		AvgMood:        Round2(MeanMood(entries)),
		Corr:           Correlate(entries),
		WeeklyAverages: WeeklyAverages(entries),
	}
}
