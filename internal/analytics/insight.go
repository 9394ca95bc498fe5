package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

const (
	// recommendThreshold is the minimum |r| before a factor earns a recommendation.
	recommendThreshold = 0.2
	maxRecommendations = 3
)

// Insight is a short natural-language digest of what drives mood.
type Insight struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// Extremes returns the most positive and most negative correlations.
// Ties resolve to the first feature in c's order. With no correlations it
// falls back to sleep_hours and screen_time at 0.
func Extremes(c Correlations) (top, bottom FeatureCorrelation) {
	if len(c) == 0 {
		return FeatureCorrelation{Feature: features.SleepHours}, FeatureCorrelation{Feature: features.ScreenTime}
	}
	top, bottom = c[0], c[0]
	for _, fc := range c[1:] {
		if fc.Coefficient > top.Coefficient {
			top = fc
		}
		if fc.Coefficient < bottom.Coefficient {
			bottom = fc
		}
	}
	return top, bottom
}

// Insights builds the summary sentence and up to three recommendations.
func Insights(entries []storage.Entry) Insight {
	if len(entries) == 0 {
		return Insight{Summary: "No data yet.", Recommendations: []string{}}
	}

	avg := Round2(MeanMood(entries))
	top, bottom := Extremes(Correlate(entries))

	recs := []string{}
	if top.Coefficient > recommendThreshold {
		recs = append(recs, fmt.Sprintf("Lean into %s this week.", top.Feature))
	}
	if bottom.Coefficient < -recommendThreshold {
		recs = append(recs, fmt.Sprintf("Reduce %s a bit and observe.", bottom.Feature))
	}
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	return Insight{
		Summary: fmt.Sprintf("Avg mood %s. Strongest positive factor: %s (%.2f). Strongest negative: %s (%.2f).",
			formatAverage(avg), top.Feature, top.Coefficient, bottom.Feature, bottom.Coefficient),
		Recommendations: recs,
	}
}

// formatAverage prints v with the shortest exact representation, keeping
// one decimal for whole numbers (5.5 → "5.5", 6 → "6.0").
func formatAverage(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
