// Package crf implements a linear-chain Conditional Random Field layer over
// neural emission scores. The transition matrix is a trainable parameter;
// emissions come from the per-token entity head of the joint model.
package crf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/internal/nn"
)

// Layer is a CRF over sequences of emission scores (T x K, one row per
// token, one column per tag).
type Layer struct {
	NumTags int
	Trans   *nn.Param // K x K transition scores, from-tag x to-tag
}

// NewLayer creates a CRF layer with zero-initialized transitions.
func NewLayer(numTags int) *Layer {
	return &Layer{
		NumTags: numTags,
		Trans:   nn.NewZeroParam("crf.transitions", numTags, numTags),
	}
}

// Params returns the trainable transition matrix.
func (l *Layer) Params() []*nn.Param {
	return []*nn.Param{l.Trans}
}

// Marginals returns per-token tag marginal probabilities (T x K).
func (l *Layer) Marginals(emissions *mat.Dense) *mat.Dense {
	t, _ := emissions.Dims()
	fb := forwardBackward(emissions, l.Trans.W)
	out := mat.NewDense(t, l.NumTags, nil)
	for i := range t {
		for y := range l.NumTags {
			out.Set(i, y, fb.marginals[i][y])
		}
	}
	return out
}
