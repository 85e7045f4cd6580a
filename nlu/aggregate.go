package nlu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FeaturesPresent reports whether usable features exist for the attribute:
// every example must carry at least one sequence-level and one sentence-level
// feature for it. Missing features make this false rather than an error,
// entities included.
func FeaturesPresent(examples []*Example, attr Attribute) bool {
	if len(examples) == 0 {
		return false
	}
	seq, sent := SequenceSentencePresent(examples, attr)
	return seq && sent
}

// SequenceSentencePresent reports, per level, whether every example carries
// features for the attribute at that level.
func SequenceSentencePresent(examples []*Example, attr Attribute) (bool, bool) {
	if len(examples) == 0 {
		return false, false
	}
	seq, sent := true, true
	for _, e := range examples {
		if len(e.FeaturesFor(attr, FeatureSequence)) == 0 {
			seq = false
		}
		if len(e.FeaturesFor(attr, FeatureSentence)) == 0 {
			sent = false
		}
	}
	return seq, sent
}

// Aggregate merges all features one example carries for an attribute into a
// single sequence matrix (tokens x total width) and a single sentence vector
// (1 x total width), concatenating contributions from different featurizers
// column-wise. Sequence features whose token counts disagree are rejected.
// Either result may be nil when no feature of that level exists.
func Aggregate(e *Example, attr Attribute) (seq, sent *mat.Dense, err error) {
	seqFeats := e.FeaturesFor(attr, FeatureSequence)
	sentFeats := e.FeaturesFor(attr, FeatureSentence)

	if len(seqFeats) > 0 {
		rows := seqFeats[0].Rows()
		for _, f := range seqFeats[1:] {
			if f.Rows() != rows {
				return nil, nil, fmt.Errorf(
					"nlu: sequence features for %q disagree on token count: %s has %d rows, %s has %d",
					attr, seqFeats[0].Origin, rows, f.Origin, f.Rows())
			}
		}
		seq = concatColumns(seqFeats)
	}
	if len(sentFeats) > 0 {
		for _, f := range sentFeats {
			if f.Rows() != 1 {
				return nil, nil, fmt.Errorf(
					"nlu: sentence feature for %q from %s has %d rows, want 1",
					attr, f.Origin, f.Rows())
			}
		}
		sent = concatColumns(sentFeats)
	}
	return seq, sent, nil
}

func concatColumns(feats []Feature) *mat.Dense {
	rows := feats[0].Rows()
	total := 0
	for _, f := range feats {
		total += f.Dim()
	}
	out := mat.NewDense(rows, total, nil)
	offset := 0
	for _, f := range feats {
		for r := range rows {
			for c := range f.Dim() {
				out.Set(r, offset+c, f.Values.At(r, c))
			}
		}
		offset += f.Dim()
	}
	return out
}

// OneHotLabelFeatures synthesizes sentence-level label features when no
// featurizer produced any: one one-hot row per label id, width equal to the
// number of distinct labels. Row i has its single 1 at column i.
func OneHotLabelFeatures(numLabels int) *mat.Dense {
	out := mat.NewDense(numLabels, numLabels, nil)
	for i := range numLabels {
		out.Set(i, i, 1)
	}
	return out
}
