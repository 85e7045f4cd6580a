package classifier

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/nlu"
)

// MissingFeaturizerError reports that training was requested but no upstream
// component attached features for a required attribute.
type MissingFeaturizerError struct {
	Attribute nlu.Attribute
}

func (e *MissingFeaturizerError) Error() string {
	return fmt.Sprintf("classifier: no features present for attribute %q: the classifier requires a featurizer in the pipeline",
		e.Attribute)
}

// modelData is the tensor view of a training set: per-example aggregated
// text features, intent ids, entity tag ids and the shared label feature
// matrix, plus the signature the network is built from.
type modelData struct {
	examples []*nlu.Example

	textSeq  []*mat.Dense // per example, nil when absent
	textSent []*mat.Dense
	labelIDs []int   // -1 for examples without an intent
	tagIDs   [][]int // nil for examples without annotated entities

	labelFeatures *mat.Dense // numLabels x labelDim, one row per intent id
	intents       *nlu.Vocabulary
	tagSet        *nlu.Vocabulary
	sig           DataSignature
}

// buildModelData aggregates example features into training tensors. Frozen
// vocabularies from a previously trained model may be passed in to continue
// training with a stable label space; nil builds them fresh.
func buildModelData(examples []*nlu.Example, cfg *Config, intents, tagSet *nlu.Vocabulary) (*modelData, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("classifier: no training examples")
	}

	seqPresent, sentPresent := nlu.SequenceSentencePresent(examples, nlu.AttributeText)
	if !seqPresent && !sentPresent {
		return nil, &MissingFeaturizerError{Attribute: nlu.AttributeText}
	}

	d := &modelData{
		examples: examples,
		textSeq:  make([]*mat.Dense, len(examples)),
		textSent: make([]*mat.Dense, len(examples)),
		labelIDs: make([]int, len(examples)),
		tagIDs:   make([][]int, len(examples)),
	}

	if intents == nil {
		intents = intentVocabulary(examples)
	}
	d.intents = intents
	if tagSet == nil {
		tagSet = tagVocabulary(examples, cfg.BILOU)
	}
	d.tagSet = tagSet

	for i, e := range examples {
		seq, sent, err := nlu.Aggregate(e, nlu.AttributeText)
		if err != nil {
			return nil, err
		}
		d.textSeq[i] = seq
		d.textSent[i] = sent

		d.labelIDs[i] = -1
		if cfg.IntentClassification && e.Intent != "" {
			d.labelIDs[i] = intents.ID(e.Intent)
		}

		if cfg.EntityRecognition && e.HasAnnotatedEntities() {
			tags := tokenTags(e.Tokens, e.Entities, cfg.BILOU)
			ids := make([]int, len(tags))
			usable := true
			for j, tag := range tags {
				if ids[j] = tagSet.ID(tag); ids[j] < 0 {
					usable = false
					break
				}
			}
			if usable {
				d.tagIDs[i] = ids
			}
		}
	}

	if cfg.IntentClassification {
		lf, err := labelFeatureMatrix(examples, intents)
		if err != nil {
			return nil, err
		}
		d.labelFeatures = lf
	}

	d.sig = buildSignature(d, cfg)
	return d, nil
}

// intentVocabulary collects distinct intents in sorted order so label ids do
// not depend on example order.
func intentVocabulary(examples []*nlu.Example) *nlu.Vocabulary {
	seen := make(map[string]bool)
	for _, e := range examples {
		if e.Intent != "" {
			seen[e.Intent] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	v := nlu.NewVocabulary()
	for _, n := range names {
		v.Add(n)
	}
	return v
}

// labelFeatureMatrix builds one sentence-level feature row per intent id. It
// prefers real intent features attached by a featurizer; when any label
// lacks them it falls back to synthesized one-hot vectors for all labels.
func labelFeatureMatrix(examples []*nlu.Example, intents *nlu.Vocabulary) (*mat.Dense, error) {
	n := intents.Size()
	if n == 0 {
		return nil, nil
	}

	rows := make([]*mat.Dense, n)
	found := 0
	width := -1
	for _, e := range examples {
		id := intents.ID(e.Intent)
		if id < 0 || rows[id] != nil {
			continue
		}
		_, sent, err := nlu.Aggregate(e, nlu.AttributeIntent)
		if err != nil {
			return nil, err
		}
		if sent == nil {
			continue
		}
		if width < 0 {
			width = sent.RawMatrix().Cols
		} else if sent.RawMatrix().Cols != width {
			return nil, fmt.Errorf("classifier: label features disagree on width: %d vs %d for intent %q",
				width, sent.RawMatrix().Cols, e.Intent)
		}
		rows[id] = sent
		found++
	}

	if found < n {
		return nlu.OneHotLabelFeatures(n), nil
	}

	out := mat.NewDense(n, width, nil)
	for id, row := range rows {
		for c := range width {
			out.Set(id, c, row.At(0, c))
		}
	}
	return out, nil
}

// buildSignature derives the data signature from the aggregated tensors.
// The entities group appears only when entity recognition is enabled and at
// least one example carries usable tag annotations.
func buildSignature(d *modelData, cfg *Config) DataSignature {
	sig := make(DataSignature)

	// A level counts as present only when every example carries it; the
	// network consumes the same tensor groups for each example.
	text := FeatureSignature{}
	text.Sequence, text.Sentence = nlu.SequenceSentencePresent(d.examples, nlu.AttributeText)
	for i := range d.examples {
		if text.Sequence && d.textSeq[i] != nil {
			text.SequenceDim = d.textSeq[i].RawMatrix().Cols
		}
		if text.Sentence && d.textSent[i] != nil {
			text.SentenceDim = d.textSent[i].RawMatrix().Cols
		}
		if text.SequenceDim > 0 || text.SentenceDim > 0 {
			break
		}
	}
	sig[GroupText] = text

	if cfg.IntentClassification && d.labelFeatures != nil {
		sig[GroupLabel] = FeatureSignature{
			Sentence:    true,
			SentenceDim: d.labelFeatures.RawMatrix().Cols,
		}
	}

	if cfg.EntityRecognition {
		for i := range d.examples {
			if d.tagIDs[i] != nil {
				sig[GroupEntities] = FeatureSignature{
					Sequence:    true,
					SequenceDim: d.tagSet.Size(),
				}
				break
			}
		}
	}
	return sig
}
