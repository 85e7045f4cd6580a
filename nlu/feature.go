package nlu

import "gonum.org/v1/gonum/mat"

// Attribute names the part of an example a feature describes.
type Attribute string

// Attributes featurizers can target.
const (
	AttributeText   Attribute = "text"
	AttributeIntent Attribute = "intent"
)

// FeatureLevel distinguishes per-token features from pooled sentence features.
type FeatureLevel string

// Feature levels.
const (
	FeatureSequence FeatureLevel = "sequence"
	FeatureSentence FeatureLevel = "sentence"
)

// Feature is a dense feature matrix attached to one attribute of an example.
// Sequence features have one row per token; sentence features have exactly
// one row. Origin records the producing component for traceability.
type Feature struct {
	Attribute Attribute
	Level     FeatureLevel
	Origin    string
	Values    *mat.Dense
}

// Rows returns the number of rows (tokens, or 1 for sentence features).
func (f Feature) Rows() int {
	r, _ := f.Values.Dims()
	return r
}

// Dim returns the feature width.
func (f Feature) Dim() int {
	_, c := f.Values.Dims()
	return c
}
