package ml

import (
	"fmt"
	"sort"

	"github.com/kalambet/moodtrack/internal/analytics"
	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/storage"
)

// Canonical cluster names, assigned by descending mean mood.
const (
	HighEnergy = "high-energy"
	Balanced   = "balanced"
	LowEnergy  = "low-energy"
)

var rankedNames = []string{HighEnergy, Balanced, LowEnergy, "misc-1", "misc-2", "misc-3"}

// Threshold rule used when no model is trained.
const (
	highMoodFloor = 7
	lowMoodCeil   = 4
)

// ClusterSummary describes one named cluster.
type ClusterSummary struct {
	Name     string             `json:"name"`
	Days     int                `json:"days"`
	Centroid map[string]float64 `json:"centroid"`
}

// Assignment maps a day to its cluster name.
type Assignment struct {
	Date    string `json:"date"`
	Cluster string `json:"cluster"`
}

// ClusterReport is the named partition of all days.
type ClusterReport struct {
	K           int              `json:"k"`
	Clusters    []ClusterSummary `json:"clusters"`
	Assignments []Assignment     `json:"assignments"`
}

// RankName returns the name for the cluster at position rank when clusters
// are ordered by descending mean mood.
func RankName(rank int) string {
	if rank < len(rankedNames) {
		return rankedNames[rank]
	}
	return fmt.Sprintf("cluster-%d", rank)
}

// LabelClusters names every day's cluster. Raw cluster ids are arbitrary
// across retraining runs, so names come from ranking clusters by mean mood.
// Without a trained model, days are bucketed by fixed mood thresholds.
func LabelClusters(entries []storage.Entry, art Artifacts) (ClusterReport, error) {
	if len(entries) == 0 {
		return ClusterReport{Clusters: []ClusterSummary{}, Assignments: []Assignment{}}, nil
	}
	for _, e := range entries {
		if err := features.Validate(e); err != nil {
			return ClusterReport{}, err
		}
	}

	a, ok := art.(Trained)
	if !ok {
		return thresholdClusters(entries), nil
	}
	report, err := modelClusters(entries, a.Set)
	if err != nil {
		return thresholdClusters(entries), nil
	}
	return report, nil
}

func thresholdClusters(entries []storage.Entry) ClusterReport {
	assigns := make([]Assignment, len(entries))
	var high, low int
	for i, e := range entries {
		name := Balanced
		switch {
		case e.Mood >= highMoodFloor:
			name = HighEnergy
			high++
		case e.Mood <= lowMoodCeil:
			name = LowEnergy
			low++
		}
		assigns[i] = Assignment{Date: e.DateString(), Cluster: name}
	}
	return ClusterReport{
		K: FallbackClusters,
		Clusters: []ClusterSummary{
			{Name: HighEnergy, Days: high, Centroid: map[string]float64{"mood": 8.0}},
			{Name: Balanced, Days: len(entries) - high - low, Centroid: map[string]float64{"mood": 6.0}},
			{Name: LowEnergy, Days: low, Centroid: map[string]float64{"mood": 3.5}},
		},
		Assignments: assigns,
	}
}

type clusterGroup struct {
	id   int
	days []storage.Entry
}

func (g clusterGroup) meanMood() float64 {
	return analytics.MeanMood(g.days)
}

func modelClusters(entries []storage.Entry, set ArtifactSet) (ClusterReport, error) {
	x, err := features.Build(entries)
	if err != nil {
		return ClusterReport{}, err
	}
	xs, err := set.Scaler.Transform(x)
	if err != nil {
		return ClusterReport{}, err
	}
	labels := set.Clusters.Labels(rows(xs))

	// Groups keep first-appearance order so equal means rank stably.
	var groups []*clusterGroup
	byID := make(map[int]*clusterGroup)
	for i, id := range labels {
		g, ok := byID[id]
		if !ok {
			g = &clusterGroup{id: id}
			byID[id] = g
			groups = append(groups, g)
		}
		g.days = append(g.days, entries[i])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].meanMood() > groups[j].meanMood()
	})

	names := make(map[int]string, len(groups))
	summaries := make([]ClusterSummary, len(groups))
	for rank, g := range groups {
		names[g.id] = RankName(rank)
		summaries[rank] = ClusterSummary{
			Name:     names[g.id],
			Days:     len(g.days),
			Centroid: map[string]float64{"mood": analytics.Round2(g.meanMood())},
		}
	}

	assigns := make([]Assignment, len(entries))
	for i, e := range entries {
		assigns[i] = Assignment{Date: e.DateString(), Cluster: names[labels[i]]}
	}
	return ClusterReport{K: set.Clusters.K, Clusters: summaries, Assignments: assigns}, nil
}
