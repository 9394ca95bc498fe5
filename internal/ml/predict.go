package ml

import (
	"math"

	"github.com/kalambet/moodtrack/internal/analytics"
	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

const (
	// NeutralMood is the forecast when nothing is known.
	NeutralMood = 5.0
	MinMood     = 1.0
	MaxMood     = 10.0
	// baselineWindow is the number of trailing days averaged without a model.
	baselineWindow = 3
)

// Prediction bases.
const (
	BasisNeutral  = "neutral"
	BasisBaseline = "baseline"
	BasisModel    = "model"
)

// Prediction is a next-day mood forecast.
type Prediction struct {
	PredictedMood float64  `json:"predicted_mood"`
	FeaturesUsed  []string `json:"features_used"`
	Basis         string   `json:"basis"`
}

// Predict forecasts tomorrow's mood from the most recent entry. With no
// entries it answers NeutralMood; without trained artifacts it averages the
// last three moods. Model output is clamped to [MinMood, MaxMood]. Every
// value is rounded to two decimals.
func Predict(entries []storage.Entry, art Artifacts) (Prediction, error) {
	p := Prediction{PredictedMood: NeutralMood, FeaturesUsed: features.Names(), Basis: BasisNeutral}
	if len(entries) == 0 {
		return p, nil
	}
	for _, e := range entries {
		if err := features.Validate(e); err != nil {
			return Prediction{}, err
		}
	}

	switch a := art.(type) {
	case Trained:
		last, err := features.Vector(entries[len(entries)-1])
		if err != nil {
			return Prediction{}, err
		}
		xs, err := a.Set.Scaler.TransformVec(last)
		if err != nil {
			return baseline(p, entries), nil
		}
		y, err := a.Set.Regressor.Predict(xs)
		if err != nil {
			return baseline(p, entries), nil
		}
		p.PredictedMood = analytics.Round2(math.Max(MinMood, math.Min(MaxMood, y)))
		p.Basis = BasisModel
		return p, nil
	default:
		return baseline(p, entries), nil
	}
}

func baseline(p Prediction, entries []storage.Entry) Prediction {
	tail := entries[max(0, len(entries)-baselineWindow):]
	p.PredictedMood = analytics.Round2(analytics.MeanMood(tail))
	p.Basis = BasisBaseline
	return p
}
