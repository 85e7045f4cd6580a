package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/nlu"
)

// Classifier is the trainable joint intent and entity model. A zero
// Classifier is not usable; construct with New or load a persisted one.
type Classifier struct {
	cfg *Config

	intents       *nlu.Vocabulary
	tagSet        *nlu.Vocabulary
	sig           DataSignature
	labelFeatures *mat.Dense

	net    *network
	policy rankingPolicy

	best          *checkpointState
	checkpointDir string

	trained bool
	frozen  bool // inference-only reload, Train refuses to run
}

// New creates an untrained classifier from the configuration.
func New(cfg *Config) (*Classifier, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, policy: resolveRankingPolicy(cfg)}, nil
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() *Config {
	return c.cfg.clone()
}

// Signature returns the data signature of the trained model, or nil before
// training.
func (c *Classifier) Signature() DataSignature {
	return c.sig
}

// Intents returns the intent vocabulary, nil before training.
func (c *Classifier) Intents() *nlu.Vocabulary {
	return c.intents
}

// Predict runs the model on one featurized example.
func (c *Classifier) Predict(e *nlu.Example) (*Result, error) {
	if !c.trained {
		return nil, fmt.Errorf("classifier: model is not trained")
	}

	seq, sent, err := nlu.Aggregate(e, nlu.AttributeText)
	if err != nil {
		return nil, err
	}
	if seq == nil && sent == nil {
		return nil, &MissingFeaturizerError{Attribute: nlu.AttributeText}
	}
	if err := c.checkShape(seq, sent); err != nil {
		return nil, err
	}

	inf := c.net.infer(seq, sent, c.labelFeatures)

	res := &Result{
		Diagnostics: &Diagnostics{
			AttentionWeights: inf.attention,
			TextTransformed:  inf.states,
		},
	}

	if inf.sims != nil {
		res.IntentRanking = c.policy.ranking(inf.sims, c.intents)
		if len(res.IntentRanking) > 0 {
			res.Intent = res.IntentRanking[0]
		}
	}

	if inf.tagPath != nil && len(inf.tagPath) == len(e.Tokens) {
		tags := make([]string, len(inf.tagPath))
		for i, id := range inf.tagPath {
			tags[i] = c.tagSet.Label(id)
		}
		res.Entities = entitiesFromTags(e.Text, e.Tokens, tags, inf.tagConf)
	}

	return res, nil
}

// checkShape verifies that inference features match the shapes the model was
// trained on; the signature must stay identical between training and
// inference.
func (c *Classifier) checkShape(seq, sent *mat.Dense) error {
	text := c.sig[GroupText]
	if text.Sequence {
		if seq == nil {
			return fmt.Errorf("classifier: model was trained with sequence features but none are present")
		}
		if _, cols := seq.Dims(); cols != text.SequenceDim {
			return fmt.Errorf("classifier: sequence feature width %d does not match trained width %d",
				cols, text.SequenceDim)
		}
	}
	if text.Sentence {
		if sent == nil {
			return fmt.Errorf("classifier: model was trained with sentence features but none are present")
		}
		if _, cols := sent.Dims(); cols != text.SentenceDim {
			return fmt.Errorf("classifier: sentence feature width %d does not match trained width %d",
				cols, text.SentenceDim)
		}
	}
	return nil
}
