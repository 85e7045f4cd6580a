package crf

import (
	"gonum.org/v1/gonum/mat"
)

// Loss computes the negative log-likelihood of the gold tag sequence under
// the CRF and the gradient with respect to the emission scores. The gradient
// with respect to the transition matrix is accumulated into Trans.Grad.
//
// Gradients follow the usual CRF form: model expectation minus empirical
// counts, with expectations from the forward-backward marginals.
func (l *Layer) Loss(emissions *mat.Dense, tags []int) (float64, *mat.Dense) {
	t, k := emissions.Dims()
	if t == 0 {
		return 0, nil
	}

	fb := forwardBackward(emissions, l.Trans.W)

	goldScore := 0.0
	for i := range t {
		goldScore += emissions.At(i, tags[i])
		if i > 0 {
			goldScore += l.Trans.W.At(tags[i-1], tags[i])
		}
	}
	nll := -goldScore + fb.logZ

	gradEmit := mat.NewDense(t, k, nil)
	for i := range t {
		for y := range k {
			g := fb.marginals[i][y]
			if y == tags[i] {
				g -= 1
			}
			gradEmit.Set(i, y, g)
		}
	}

	if t > 1 {
		pair := transitionMarginals(fb, emissions, l.Trans.W)
		for i := range t - 1 {
			for a := range k {
				for b := range k {
					l.Trans.Grad.Set(a, b, l.Trans.Grad.At(a, b)+pair[i][a][b])
				}
			}
			a, b := tags[i], tags[i+1]
			l.Trans.Grad.Set(a, b, l.Trans.Grad.At(a, b)-1)
		}
	}

	return nll, gradEmit
}
