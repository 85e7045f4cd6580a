package featurizer

import (
	"reflect"
	"testing"

	"github.com/happyhackingspace/diet/nlu"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []nlu.Token
	}{
		{"hello world", []nlu.Token{
			{Text: "hello", Start: 0, End: 5},
			{Text: "world", Start: 6, End: 11},
		}},
		{"  spaced   out ", []nlu.Token{
			{Text: "spaced", Start: 2, End: 8},
			{Text: "out", Start: 11, End: 14},
		}},
		{"one", []nlu.Token{{Text: "one", Start: 0, End: 3}}},
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func tokenized(text string) *nlu.Example {
	return &nlu.Example{Text: text, Tokens: Tokenize(text)}
}

func TestCountFeaturizerFitAndProcess(t *testing.T) {
	examples := []*nlu.Example{
		tokenized("hello world"),
		tokenized("hello there"),
	}
	f := NewCountFeaturizer()
	if err := f.Fit(examples); err != nil {
		t.Fatal(err)
	}
	// sorted: hello, there, world
	if len(f.Vocabulary) != 3 {
		t.Fatalf("vocabulary = %v, want 3 terms", f.Vocabulary)
	}
	if f.Vocabulary["hello"] != 0 {
		t.Errorf("hello index = %d, want 0", f.Vocabulary["hello"])
	}

	e := examples[0]
	if err := f.Process(e); err != nil {
		t.Fatal(err)
	}
	seqs := e.FeaturesFor(nlu.AttributeText, nlu.FeatureSequence)
	sents := e.FeaturesFor(nlu.AttributeText, nlu.FeatureSentence)
	if len(seqs) != 1 || len(sents) != 1 {
		t.Fatalf("features: %d sequence, %d sentence, want 1 each", len(seqs), len(sents))
	}
	if seqs[0].Origin != Origin {
		t.Errorf("origin = %q, want %q", seqs[0].Origin, Origin)
	}

	seq := seqs[0].Values
	if r, c := seq.Dims(); r != 2 || c != 3 {
		t.Fatalf("sequence dims %dx%d, want 2x3", r, c)
	}
	if seq.At(0, 0) != 1 || seq.At(1, 2) != 1 {
		t.Errorf("one-hot rows wrong: %v", seq)
	}

	sent := sents[0].Values
	if sent.At(0, 0) != 1 || sent.At(0, 2) != 1 || sent.At(0, 1) != 0 {
		t.Errorf("sentence counts wrong: %v", sent)
	}
}

func TestCountFeaturizerIgnoresUnknownTerms(t *testing.T) {
	f := NewCountFeaturizer()
	if err := f.Fit([]*nlu.Example{tokenized("hello world")}); err != nil {
		t.Fatal(err)
	}

	e := tokenized("hello mars")
	if err := f.Process(e); err != nil {
		t.Fatal(err)
	}
	seq := e.FeaturesFor(nlu.AttributeText, nlu.FeatureSequence)[0].Values
	sum := 0.0
	for j := range len(f.Vocabulary) {
		sum += seq.At(1, j)
	}
	if sum != 0 {
		t.Errorf("unknown token produced counts: %v", seq)
	}
}

func TestCountFeaturizerMinDF(t *testing.T) {
	f := NewCountFeaturizer()
	f.MinDF = 2
	examples := []*nlu.Example{
		tokenized("hello world"),
		tokenized("hello there"),
	}
	if err := f.Fit(examples); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Vocabulary["world"]; ok {
		t.Errorf("term below min_df kept: %v", f.Vocabulary)
	}
	if _, ok := f.Vocabulary["hello"]; !ok {
		t.Errorf("frequent term dropped: %v", f.Vocabulary)
	}
}

func TestCountFeaturizerCharNgrams(t *testing.T) {
	f := NewCountFeaturizer()
	f.Analyzer = "char_wb"
	f.NgramRange = [2]int{2, 3}
	if err := f.Fit([]*nlu.Example{tokenized("ab")}); err != nil {
		t.Fatal(err)
	}
	// " ab " yields 2-grams " a", "ab", "b " and 3-grams " ab", "ab "
	for _, term := range []string{" a", "ab", "b ", " ab", "ab "} {
		if _, ok := f.Vocabulary[term]; !ok {
			t.Errorf("missing ngram %q in %v", term, f.Vocabulary)
		}
	}
}

func TestCountFeaturizerErrors(t *testing.T) {
	f := NewCountFeaturizer()
	if err := f.Process(tokenized("hi")); err == nil {
		t.Error("unfitted featurizer accepted an example")
	}
	if err := f.Fit([]*nlu.Example{{Text: "untokenized"}}); err == nil {
		t.Error("Fit accepted an untokenized example")
	}
}
