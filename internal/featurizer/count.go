package featurizer

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/nlu"
)

// Origin identifies features produced by the count featurizer.
const Origin = "count_vectors"

// CountFeaturizer converts tokenized examples into count vectors: one row of
// analyzer-feature counts per token at sequence level and the pooled counts
// over the whole text at sentence level. The struct is JSON-persistable so a
// fitted vocabulary survives a save/load round trip.
type CountFeaturizer struct {
	Vocabulary map[string]int `json:"vocabulary"`
	NgramRange [2]int         `json:"ngram_range"`
	Analyzer   string         `json:"analyzer"` // "word" or "char_wb"
	MinDF      int            `json:"min_df"`
	Lowercase  bool           `json:"lowercase"`
}

// NewCountFeaturizer creates a featurizer with default settings: lowercased
// word unigrams, no document-frequency cutoff.
func NewCountFeaturizer() *CountFeaturizer {
	return &CountFeaturizer{
		NgramRange: [2]int{1, 1},
		Analyzer:   "word",
		MinDF:      1,
		Lowercase:  true,
	}
}

// analyze extracts count features from one token.
func (f *CountFeaturizer) analyze(token string) []string {
	if f.Lowercase {
		token = strings.ToLower(token)
	}
	if f.Analyzer == "char_wb" {
		return ngrams(" "+token+" ", f.NgramRange[0], f.NgramRange[1])
	}
	return []string{token}
}

// ngrams extracts character n-grams of lengths minN..maxN.
func ngrams(s string, minN, maxN int) []string {
	runes := []rune(s)
	var out []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

// Fit builds the vocabulary from tokenized examples, filtered by document
// frequency. Terms are sorted for a deterministic index assignment.
func (f *CountFeaturizer) Fit(examples []*nlu.Example) error {
	df := make(map[string]int)
	for _, e := range examples {
		if len(e.Tokens) == 0 {
			return fmt.Errorf("featurizer: example %q is not tokenized", e.Text)
		}
		seen := make(map[string]bool)
		for _, tok := range e.Tokens {
			for _, term := range f.analyze(tok.Text) {
				if !seen[term] {
					df[term]++
					seen[term] = true
				}
			}
		}
	}

	var terms []string
	for term, count := range df {
		if count >= f.MinDF {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	f.Vocabulary = make(map[string]int, len(terms))
	for i, term := range terms {
		f.Vocabulary[term] = i
	}
	if len(f.Vocabulary) == 0 {
		return fmt.Errorf("featurizer: fitted vocabulary is empty")
	}
	return nil
}

// Process attaches sequence and sentence count features to a tokenized
// example. Unknown terms are ignored, so inference-time text never grows
// the vocabulary.
func (f *CountFeaturizer) Process(e *nlu.Example) error {
	if f.Vocabulary == nil {
		return fmt.Errorf("featurizer: not fitted")
	}
	if len(e.Tokens) == 0 {
		return fmt.Errorf("featurizer: example %q is not tokenized", e.Text)
	}
	dim := len(f.Vocabulary)

	seq := mat.NewDense(len(e.Tokens), dim, nil)
	sent := mat.NewDense(1, dim, nil)
	for i, tok := range e.Tokens {
		for _, term := range f.analyze(tok.Text) {
			if j, ok := f.Vocabulary[term]; ok {
				seq.Set(i, j, seq.At(i, j)+1)
				sent.Set(0, j, sent.At(0, j)+1)
			}
		}
	}

	e.AddFeature(nlu.Feature{
		Attribute: nlu.AttributeText,
		Level:     nlu.FeatureSequence,
		Origin:    Origin,
		Values:    seq,
	})
	e.AddFeature(nlu.Feature{
		Attribute: nlu.AttributeText,
		Level:     nlu.FeatureSentence,
		Origin:    Origin,
		Values:    sent,
	})
	return nil
}
