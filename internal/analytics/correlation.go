// Package analytics computes the read-side statistics over mood entries:
// lifestyle/mood correlations, period summaries and natural-language
// insights. Everything here is a pure function of its input and is
// recomputed on every call.
package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

// minCorrelationRows is the smallest sample for which a coefficient is reported.
const minCorrelationRows = 3

// FeatureCorrelation is one feature's Pearson coefficient against mood.
type FeatureCorrelation struct {
	Feature     string
	Coefficient float64
}

// Correlations holds one coefficient per lifestyle feature in feature
// column order. The order is part of the contract: insight tie-breaks
// resolve to the first feature encountered.
type Correlations []FeatureCorrelation

// Map returns the coefficients keyed by feature name.
func (c Correlations) Map() map[string]float64 {
	out := make(map[string]float64, len(c))
	for _, fc := range c {
		out[fc.Feature] = fc.Coefficient
	}
	return out
}

// Get returns the coefficient for feature.
func (c Correlations) Get(feature string) (float64, bool) {
	for _, fc := range c {
		if fc.Feature == feature {
			return fc.Coefficient, true
		}
	}
	return 0, false
}

// MarshalJSON encodes c as a JSON object, keeping feature order.
func (c Correlations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fc := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fc.Feature)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fc.Coefficient)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (c *Correlations) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("correlations: expected object, got %v", tok)
	}
	var out Correlations
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("correlations: expected string key, got %v", tok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("correlations: decoding %s: %w", key, err)
		}
		out = append(out, FeatureCorrelation{Feature: key, Coefficient: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// Pearson returns the linear correlation of xs and ys. It returns 0 for
// fewer than three points, mismatched lengths, or when either series is
// constant.
func Pearson(xs, ys []float64) float64 {
	if len(xs) < minCorrelationRows || len(xs) != len(ys) {
		return 0
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// Correlate computes Pearson's r between each lifestyle feature and mood.
// Every lifestyle feature is present in the result, with 0 where the
// coefficient is undefined.
func Correlate(entries []storage.Entry) Correlations {
	lifestyle := features.Lifestyle()
	out := make(Correlations, 0, len(lifestyle))
	mood := features.Moods(entries)
	for _, name := range lifestyle {
		xs := make([]float64, len(entries))
		for i, e := range entries {
			xs[i], _ = features.Value(e, name)
		}
		out = append(out, FeatureCorrelation{Feature: name, Coefficient: Pearson(xs, mood)})
	}
	return out
}
