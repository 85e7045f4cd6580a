package classifier

import "gonum.org/v1/gonum/mat"

// IntentPrediction is one ranked intent candidate.
type IntentPrediction struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// EntityPrediction is one extracted entity with character offsets into the
// original text.
type EntityPrediction struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Value      string  `json:"value"`
	Entity     string  `json:"entity"`
	Role       string  `json:"role,omitempty"`
	Group      string  `json:"group,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Diagnostics exposes intermediate model outputs for inspection: the
// attention probabilities of the final encoder layer (one matrix per head)
// and the encoder output states.
type Diagnostics struct {
	AttentionWeights []*mat.Dense
	TextTransformed  *mat.Dense
}

// Result is the model output for one message. When intent classification is
// enabled, Intent always equals the first element of IntentRanking.
type Result struct {
	Intent        IntentPrediction   `json:"intent"`
	IntentRanking []IntentPrediction `json:"intent_ranking"`
	Entities      []EntityPrediction `json:"entities"`
	Diagnostics   *Diagnostics       `json:"-"`
}
