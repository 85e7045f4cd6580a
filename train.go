package diet

import (
	"fmt"
	"math/rand"

	"github.com/happyhackingspace/diet/classifier"
	"github.com/happyhackingspace/diet/internal/dataset"
	"github.com/happyhackingspace/diet/nlu"
)

// Train trains a new pipeline on a YAML training-data file. A nil config
// uses the defaults.
func Train(dataPath string, cfg *classifier.Config) (*Pipeline, error) {
	examples, err := dataset.Load(dataPath)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.TrainExamples(examples); err != nil {
		return nil, err
	}
	return p, nil
}

// EvalConfig holds configuration for cross-validation.
type EvalConfig struct {
	Folds int
	Seed  int64
}

// DefaultEvalConfig returns 5-fold evaluation with a fixed shuffle seed.
func DefaultEvalConfig() *EvalConfig {
	return &EvalConfig{Folds: 5, Seed: 1}
}

// EvalResult holds cross-validation results.
type EvalResult struct {
	IntentAccuracy float64
	EntityAccuracy float64
	IntentCorrect  int
	IntentTotal    int
	EntityCorrect  int
	EntityTotal    int
}

// Evaluate runs k-fold cross-validation on a YAML training-data file,
// training a fresh pipeline per fold. Entity accuracy counts annotated
// spans reproduced exactly (offsets and type).
func Evaluate(dataPath string, cfg *classifier.Config, eval *EvalConfig) (*EvalResult, error) {
	if eval == nil {
		eval = DefaultEvalConfig()
	}
	if eval.Folds < 2 {
		return nil, fmt.Errorf("diet: need at least 2 folds, got %d", eval.Folds)
	}

	examples, err := dataset.Load(dataPath)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	if len(examples) < eval.Folds {
		return nil, fmt.Errorf("diet: %d examples cannot fill %d folds", len(examples), eval.Folds)
	}

	rng := rand.New(rand.NewSource(eval.Seed))
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})

	result := &EvalResult{}
	for fold := range eval.Folds {
		var train, held []*nlu.Example
		for i, e := range examples {
			if i%eval.Folds == fold {
				held = append(held, e)
			} else {
				train = append(train, e)
			}
		}

		p, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if err := p.TrainExamples(cloneExamples(train)); err != nil {
			return nil, err
		}

		for _, e := range held {
			res, err := p.Parse(e.Text)
			if err != nil {
				return nil, err
			}
			if e.Intent != "" {
				result.IntentTotal++
				if res.Intent.Name == e.Intent {
					result.IntentCorrect++
				}
			}
			for _, want := range e.Entities {
				result.EntityTotal++
				for _, got := range res.Entities {
					if got.Start == want.Start && got.End == want.End && got.Entity == want.Type {
						result.EntityCorrect++
						break
					}
				}
			}
		}
	}

	if result.IntentTotal > 0 {
		result.IntentAccuracy = float64(result.IntentCorrect) / float64(result.IntentTotal)
	}
	if result.EntityTotal > 0 {
		result.EntityAccuracy = float64(result.EntityCorrect) / float64(result.EntityTotal)
	}
	return result, nil
}

// cloneExamples copies the example structs so per-fold featurization does
// not leak features across folds.
func cloneExamples(in []*nlu.Example) []*nlu.Example {
	out := make([]*nlu.Example, len(in))
	for i, e := range in {
		cp := *e
		cp.Features = nil
		cp.Tokens = nil
		out[i] = &cp
	}
	return out
}
