// Package nn implements the small neural-network toolkit the joint model is
// built from: dense layers, layer norm, multi-head self-attention, a
// transformer encoder and an Adam optimizer. Every layer caches what its
// backward pass needs; forward and backward calls must alternate.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable matrix with its gradient accumulator.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

// NewParam creates a Glorot-initialized parameter.
func NewParam(name string, rows, cols int, rng *rand.Rand) *Param {
	w := mat.NewDense(rows, cols, nil)
	limit := math.Sqrt(6.0 / float64(rows+cols))
	for r := range rows {
		for c := range cols {
			w.Set(r, c, (rng.Float64()*2-1)*limit)
		}
	}
	return &Param{
		Name: name,
		W:    w,
		Grad: mat.NewDense(rows, cols, nil),
	}
}

// NewZeroParam creates a zero-initialized parameter (biases, transitions).
func NewZeroParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(rows, cols, nil),
		Grad: mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

func matmul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

func add(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Add(a, b)
	return &out
}

// addRowVec adds a 1xC row vector to every row of x.
func addRowVec(x, row *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			out.Set(i, j, x.At(i, j)+row.At(0, j))
		}
	}
	return out
}

// colSums returns the 1xC column sums of x.
func colSums(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(1, c, nil)
	for i := range r {
		for j := range c {
			out.Set(0, j, out.At(0, j)+x.At(i, j))
		}
	}
	return out
}

// SoftmaxRows applies a numerically stable softmax to each row.
func SoftmaxRows(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		maxv := x.At(i, 0)
		for j := 1; j < c; j++ {
			if x.At(i, j) > maxv {
				maxv = x.At(i, j)
			}
		}
		sum := 0.0
		for j := range c {
			e := math.Exp(x.At(i, j) - maxv)
			out.Set(i, j, e)
			sum += e
		}
		for j := range c {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}

// softmaxRowsBackward maps the gradient w.r.t. softmax outputs to the
// gradient w.r.t. its inputs: gx = p * (g - sum(g*p)) per row.
func softmaxRowsBackward(probs, grad *mat.Dense) *mat.Dense {
	r, c := probs.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		dot := 0.0
		for j := range c {
			dot += grad.At(i, j) * probs.At(i, j)
		}
		for j := range c {
			out.Set(i, j, probs.At(i, j)*(grad.At(i, j)-dot))
		}
	}
	return out
}

// Softmax applies a numerically stable softmax to a plain slice.
func Softmax(values []float64) []float64 {
	maxv := values[0]
	for _, v := range values[1:] {
		if v > maxv {
			maxv = v
		}
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		out[i] = math.Exp(v - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
