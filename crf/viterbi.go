package crf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Decode finds the highest-scoring tag sequence with the Viterbi algorithm
// (log domain).
func (l *Layer) Decode(emissions *mat.Dense) []int {
	t, k := emissions.Dims()
	if t == 0 {
		return nil
	}

	// delta[i][y] = best score of a path ending at position i with tag y,
	// psi[i][y] = best previous tag for backtracking.
	delta := make([][]float64, t)
	psi := make([][]int, t)

	delta[0] = make([]float64, k)
	psi[0] = make([]int, k)
	for y := range k {
		delta[0][y] = emissions.At(0, y)
	}

	for i := 1; i < t; i++ {
		delta[i] = make([]float64, k)
		psi[i] = make([]int, k)
		for y := range k {
			best := math.Inf(-1)
			bestPrev := 0
			for yp := range k {
				score := delta[i-1][yp] + l.Trans.W.At(yp, y)
				if score > best {
					best = score
					bestPrev = yp
				}
			}
			delta[i][y] = best + emissions.At(i, y)
			psi[i][y] = bestPrev
		}
	}

	best := math.Inf(-1)
	bestTag := 0
	for y := range k {
		if delta[t-1][y] > best {
			best = delta[t-1][y]
			bestTag = y
		}
	}

	path := make([]int, t)
	path[t-1] = bestTag
	for i := t - 2; i >= 0; i-- {
		path[i] = psi[i+1][path[i+1]]
	}
	return path
}
