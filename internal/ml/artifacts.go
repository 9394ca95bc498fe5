package ml

// ArtifactSet is everything one retraining pass produces. The three
// models are always fitted, stored and replaced together.
type ArtifactSet struct {
	Scaler    *StandardScaler
	Clusters  *KMeans
	Regressor *Forest
}

// Complete reports whether all three models are present.
func (s ArtifactSet) Complete() bool {
	return s.Scaler != nil && s.Clusters != nil && s.Regressor != nil
}

// Artifacts is the outcome of loading a model set: either Trained or
// Untrained. Consumers type-switch on it.
type Artifacts interface {
	artifacts()
}

// Trained carries a complete artifact set.
type Trained struct {
	ID  string
	Set ArtifactSet
}

// Untrained means no usable artifact set exists. Reason is diagnostic only.
type Untrained struct {
	Reason string
}

func (Trained) artifacts()   {}
func (Untrained) artifacts() {}

// Resolve returns Trained for a complete set and Untrained otherwise.
func Resolve(id string, set ArtifactSet) Artifacts {
	if !set.Complete() {
		return Untrained{Reason: "incomplete artifact set"}
	}
	return Trained{ID: id, Set: set}
}
