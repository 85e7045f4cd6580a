package crf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fbResult holds scaled forward-backward quantities for one sequence.
type fbResult struct {
	logZ      float64
	marginals [][]float64 // [T][K] P(y_t = k | x)
	alpha     [][]float64 // scaled forward variables
	beta      [][]float64 // scaled backward variables
	scale     []float64
}

// forwardBackward runs the scaled forward-backward algorithm over emission
// scores (T x K) and transition scores (K x K).
func forwardBackward(emissions *mat.Dense, trans *mat.Dense) fbResult {
	t, k := emissions.Dims()
	if t == 0 {
		return fbResult{}
	}

	expEmit := make([][]float64, t)
	for i := range t {
		expEmit[i] = make([]float64, k)
		for y := range k {
			expEmit[i][y] = math.Exp(emissions.At(i, y))
		}
	}
	expTrans := make([][]float64, k)
	for i := range k {
		expTrans[i] = make([]float64, k)
		for j := range k {
			expTrans[i][j] = math.Exp(trans.At(i, j))
		}
	}

	alpha := make([][]float64, t)
	scale := make([]float64, t)

	alpha[0] = make([]float64, k)
	sum := 0.0
	for y := range k {
		alpha[0][y] = expEmit[0][y]
		sum += alpha[0][y]
	}
	scale[0] = 1 / sum
	for y := range k {
		alpha[0][y] *= scale[0]
	}

	for i := 1; i < t; i++ {
		alpha[i] = make([]float64, k)
		sum = 0
		for y := range k {
			s := 0.0
			for yp := range k {
				s += alpha[i-1][yp] * expTrans[yp][y]
			}
			alpha[i][y] = s * expEmit[i][y]
			sum += alpha[i][y]
		}
		if sum == 0 {
			scale[i] = 1
		} else {
			scale[i] = 1 / sum
		}
		for y := range k {
			alpha[i][y] *= scale[i]
		}
	}

	beta := make([][]float64, t)
	beta[t-1] = make([]float64, k)
	for y := range k {
		beta[t-1][y] = scale[t-1]
	}
	for i := t - 2; i >= 0; i-- {
		beta[i] = make([]float64, k)
		for y := range k {
			s := 0.0
			for yn := range k {
				s += expTrans[y][yn] * expEmit[i+1][yn] * beta[i+1][yn]
			}
			beta[i][y] = s * scale[i]
		}
	}

	logZ := 0.0
	for i := range t {
		logZ -= math.Log(scale[i])
	}

	marginals := make([][]float64, t)
	for i := range t {
		marginals[i] = make([]float64, k)
		for y := range k {
			marginals[i][y] = alpha[i][y] * beta[i][y] / scale[i]
		}
	}

	return fbResult{logZ: logZ, marginals: marginals, alpha: alpha, beta: beta, scale: scale}
}

// transitionMarginals computes P(y_t = i, y_{t+1} = j | x) for each adjacent
// pair; returns a [T-1][K][K] tensor.
func transitionMarginals(fb fbResult, emissions *mat.Dense, trans *mat.Dense) [][][]float64 {
	t, k := emissions.Dims()
	if t <= 1 {
		return nil
	}
	out := make([][][]float64, t-1)
	for i := range t - 1 {
		out[i] = make([][]float64, k)
		for a := range k {
			out[i][a] = make([]float64, k)
			for b := range k {
				out[i][a][b] = fb.alpha[i][a] *
					math.Exp(trans.At(a, b)) *
					math.Exp(emissions.At(i+1, b)) *
					fb.beta[i+1][b]
			}
		}
	}
	return out
}
