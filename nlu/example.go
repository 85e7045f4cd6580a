// Package nlu holds the shared data model for the NLU pipeline: training
// examples, their tokens and entity annotations, the features attached by
// upstream featurizers, and label vocabularies.
package nlu

// Entity is a span annotation on an example's text.
type Entity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value"`
	Type  string `json:"entity"`
	Role  string `json:"role,omitempty"`
	Group string `json:"group,omitempty"`
}

// Token is a text token with character offsets into the example text.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Example is a single training or inference example. Featurizers attach
// Feature values to it before the classifier consumes it.
type Example struct {
	Text     string
	Intent   string
	Entities []Entity
	Tokens   []Token
	Features []Feature
}

// AddFeature attaches a feature produced by an upstream featurizer.
func (e *Example) AddFeature(f Feature) {
	e.Features = append(e.Features, f)
}

// FeaturesFor returns all features attached for the given attribute and level,
// in attachment order.
func (e *Example) FeaturesFor(attr Attribute, level FeatureLevel) []Feature {
	var out []Feature
	for _, f := range e.Features {
		if f.Attribute == attr && f.Level == level {
			out = append(out, f)
		}
	}
	return out
}

// HasAnnotatedEntities reports whether the example carries entity annotations
// that can be aligned to its tokens (tokens with character offsets exist).
func (e *Example) HasAnnotatedEntities() bool {
	return len(e.Entities) > 0 && len(e.Tokens) > 0
}
