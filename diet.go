// Package diet trains and runs a joint intent classification and entity
// recognition model over plain-text messages.
//
// The pipeline tokenizes a message, turns it into count-vector features and
// feeds those to a transformer-based classifier that predicts the intent and
// extracts entities in a single pass:
//
//	p, _ := diet.Train("data/nlu.yml", nil)
//	res, _ := p.Parse("book a flight to paris")
//	fmt.Println(res.Intent.Name)        // "book_flight"
//	fmt.Println(res.Entities[0].Value)  // "paris"
package diet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/diet/classifier"
	"github.com/happyhackingspace/diet/internal/featurizer"
	"github.com/happyhackingspace/diet/nlu"
)

const featurizerFile = "featurizer.json"

// Pipeline bundles the featurizer and the joint model.
type Pipeline struct {
	fz  *featurizer.CountFeaturizer
	clf *classifier.Classifier
}

// New creates an untrained pipeline. A nil config uses the defaults.
func New(cfg *classifier.Config) (*Pipeline, error) {
	clf, err := classifier.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	return &Pipeline{fz: featurizer.NewCountFeaturizer(), clf: clf}, nil
}

// Classifier exposes the underlying joint model.
func (p *Pipeline) Classifier() *classifier.Classifier {
	return p.clf
}

// TrainExamples tokenizes and featurizes the examples, then fits the joint
// model. On a pipeline loaded for fine-tuning the fitted vocabulary is kept,
// so feature widths stay compatible with the persisted network.
func (p *Pipeline) TrainExamples(examples []*nlu.Example) error {
	if len(examples) == 0 {
		return fmt.Errorf("diet: no training examples")
	}
	for _, e := range examples {
		if len(e.Tokens) == 0 {
			e.Tokens = featurizer.Tokenize(e.Text)
		}
	}
	if p.fz.Vocabulary == nil {
		if err := p.fz.Fit(examples); err != nil {
			return fmt.Errorf("diet: %w", err)
		}
	}
	for _, e := range examples {
		if err := p.fz.Process(e); err != nil {
			return fmt.Errorf("diet: %w", err)
		}
	}
	if err := p.clf.Train(examples); err != nil {
		return fmt.Errorf("diet: %w", err)
	}
	return nil
}

// Parse classifies one message.
func (p *Pipeline) Parse(text string) (*classifier.Result, error) {
	e := &nlu.Example{Text: text, Tokens: featurizer.Tokenize(text)}
	if len(e.Tokens) == 0 {
		return nil, fmt.Errorf("diet: message %q contains no tokens", text)
	}
	if err := p.fz.Process(e); err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	res, err := p.clf.Predict(e)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	return res, nil
}

// Save persists the pipeline under dir: the featurizer next to the joint
// model's artifacts.
func (p *Pipeline) Save(dir string) error {
	if err := p.clf.Persist(dir); err != nil {
		return fmt.Errorf("diet: %w", err)
	}
	data, err := json.MarshalIndent(p.fz, "", "  ")
	if err != nil {
		return fmt.Errorf("diet: encode featurizer: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, featurizerFile), data, 0o644); err != nil {
		return fmt.Errorf("diet: write featurizer: %w", err)
	}
	return nil
}

// Load restores a persisted pipeline for inference.
func Load(dir string) (*Pipeline, error) {
	fz, err := loadFeaturizer(dir)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	return &Pipeline{fz: fz, clf: clf}, nil
}

// LoadForFineTuning restores a persisted pipeline so training can continue
// from the saved weights. The override config may adjust the training
// schedule; the architecture and label space stay fixed.
func LoadForFineTuning(dir string, override *classifier.Config) (*Pipeline, error) {
	fz, err := loadFeaturizer(dir)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.LoadForFineTuning(dir, override)
	if err != nil {
		return nil, fmt.Errorf("diet: %w", err)
	}
	return &Pipeline{fz: fz, clf: clf}, nil
}

func loadFeaturizer(dir string) (*featurizer.CountFeaturizer, error) {
	data, err := os.ReadFile(filepath.Join(dir, featurizerFile))
	if err != nil {
		return nil, fmt.Errorf("diet: read featurizer: %w", err)
	}
	var fz featurizer.CountFeaturizer
	if err := json.Unmarshal(data, &fz); err != nil {
		return nil, fmt.Errorf("diet: malformed featurizer: %w", err)
	}
	if len(fz.Vocabulary) == 0 {
		return nil, fmt.Errorf("diet: featurizer has an empty vocabulary")
	}
	return &fz, nil
}
