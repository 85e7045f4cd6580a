package classifier

import (
	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/nlu"
)

// example builds a tokenized example for tests.
func example(text, intent string, entities ...nlu.Entity) *nlu.Example {
	return &nlu.Example{
		Text:     text,
		Intent:   intent,
		Entities: entities,
		Tokens:   tokensFor(text),
	}
}

// featurizeWords attaches bag-of-words features to every example: a one-hot
// row per token at sequence level and the summed bag at sentence level, with
// the word index space shared across the set.
func featurizeWords(examples []*nlu.Example) {
	vocab := map[string]int{}
	for _, e := range examples {
		for _, tok := range e.Tokens {
			if _, ok := vocab[tok.Text]; !ok {
				vocab[tok.Text] = len(vocab)
			}
		}
	}
	dim := len(vocab)

	for _, e := range examples {
		seq := mat.NewDense(len(e.Tokens), dim, nil)
		sent := mat.NewDense(1, dim, nil)
		for i, tok := range e.Tokens {
			j := vocab[tok.Text]
			seq.Set(i, j, 1)
			sent.Set(0, j, sent.At(0, j)+1)
		}
		e.AddFeature(nlu.Feature{
			Attribute: nlu.AttributeText, Level: nlu.FeatureSequence,
			Origin: "test_counts", Values: seq,
		})
		e.AddFeature(nlu.Feature{
			Attribute: nlu.AttributeText, Level: nlu.FeatureSentence,
			Origin: "test_counts", Values: sent,
		})
	}
}

// featurizeLike featurizes a fresh example against the word space of an
// already featurized training set, for inference-side tests.
func featurizeLike(trained []*nlu.Example, e *nlu.Example) {
	vocab := map[string]int{}
	for _, te := range trained {
		for _, tok := range te.Tokens {
			if _, ok := vocab[tok.Text]; !ok {
				vocab[tok.Text] = len(vocab)
			}
		}
	}
	dim := len(vocab)

	seq := mat.NewDense(len(e.Tokens), dim, nil)
	sent := mat.NewDense(1, dim, nil)
	for i, tok := range e.Tokens {
		if j, ok := vocab[tok.Text]; ok {
			seq.Set(i, j, 1)
			sent.Set(0, j, sent.At(0, j)+1)
		}
	}
	e.AddFeature(nlu.Feature{
		Attribute: nlu.AttributeText, Level: nlu.FeatureSequence,
		Origin: "test_counts", Values: seq,
	})
	e.AddFeature(nlu.Feature{
		Attribute: nlu.AttributeText, Level: nlu.FeatureSentence,
		Origin: "test_counts", Values: sent,
	})
}

// smallConfig is a tiny architecture that trains in milliseconds.
func smallConfig() *Config {
	cfg := DefaultConfig()
	cfg.Epochs = 120
	cfg.BatchSize = 8
	cfg.LearningRate = 0.01
	cfg.TransformerLayers = 1
	cfg.TransformerSize = 8
	cfg.AttentionHeads = 2
	cfg.EmbeddingDim = 8
	cfg.DropRate = 0
	cfg.RandomSeed = 42
	return cfg
}

// trainingSet is a minimal two-intent corpus with one entity type.
func trainingSet() []*nlu.Example {
	examples := []*nlu.Example{
		example("book a flight to paris", "book_flight",
			nlu.Entity{Start: 17, End: 22, Value: "paris", Type: "city"}),
		example("book a flight to london", "book_flight",
			nlu.Entity{Start: 17, End: 23, Value: "london", Type: "city"}),
		example("hello there", "greet"),
		example("hello again", "greet"),
	}
	featurizeWords(examples)
	return examples
}
