package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully-connected layer: y = xW + b.
type Dense struct {
	W *Param // in x out
	B *Param // 1 x out

	x *mat.Dense // cached input
}

// NewDense creates a dense layer with Glorot weights and zero bias.
func NewDense(name string, in, out int, rng *rand.Rand) *Dense {
	return &Dense{
		W: NewParam(name+".weight", in, out, rng),
		B: NewZeroParam(name+".bias", 1, out),
	}
}

// Forward computes y = xW + b and caches x for the backward pass.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	d.x = x
	return addRowVec(matmul(x, d.W.W), d.B.W)
}

// Backward accumulates parameter gradients and returns the input gradient.
func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	d.W.Grad.Add(d.W.Grad, matmul(d.x.T(), grad))
	d.B.Grad.Add(d.B.Grad, colSums(grad))
	return matmul(grad, d.W.W.T())
}

// Params returns the layer's trainable parameters.
func (d *Dense) Params() []*Param {
	return []*Param{d.W, d.B}
}

// ReLU is an element-wise rectifier.
type ReLU struct {
	x *mat.Dense
}

// Forward applies max(0, x).
func (a *ReLU) Forward(x *mat.Dense) *mat.Dense {
	a.x = x
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			if v := x.At(i, j); v > 0 {
				out.Set(i, j, v)
			}
		}
	}
	return out
}

// Backward passes gradient through where the input was positive.
func (a *ReLU) Backward(grad *mat.Dense) *mat.Dense {
	r, c := grad.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			if a.x.At(i, j) > 0 {
				out.Set(i, j, grad.At(i, j))
			}
		}
	}
	return out
}

// LayerNorm normalizes each row to zero mean and unit variance, then applies
// a learned scale and shift.
type LayerNorm struct {
	Gamma *Param // 1 x dim
	Beta  *Param // 1 x dim
	eps   float64

	x *mat.Dense
}

// NewLayerNorm creates a layer norm with gamma=1, beta=0.
func NewLayerNorm(name string, dim int) *LayerNorm {
	gamma := NewZeroParam(name+".gamma", 1, dim)
	for j := range dim {
		gamma.W.Set(0, j, 1)
	}
	return &LayerNorm{
		Gamma: gamma,
		Beta:  NewZeroParam(name+".beta", 1, dim),
		eps:   1e-5,
	}
}

// Forward normalizes each row of x.
func (l *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	l.x = x
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		mean, std := l.rowStats(i)
		for j := range c {
			norm := (x.At(i, j) - mean) / std
			out.Set(i, j, l.Gamma.W.At(0, j)*norm+l.Beta.W.At(0, j))
		}
	}
	return out
}

// Backward computes input and parameter gradients.
func (l *LayerNorm) Backward(grad *mat.Dense) *mat.Dense {
	r, c := grad.Dims()
	n := float64(c)
	out := mat.NewDense(r, c, nil)
	for i := range r {
		mean, std := l.rowStats(i)

		sumG, sumGN := 0.0, 0.0
		for j := range c {
			norm := (l.x.At(i, j) - mean) / std
			g := grad.At(i, j) * l.Gamma.W.At(0, j)
			sumG += g
			sumGN += g * norm

			l.Gamma.Grad.Set(0, j, l.Gamma.Grad.At(0, j)+grad.At(i, j)*norm)
			l.Beta.Grad.Set(0, j, l.Beta.Grad.At(0, j)+grad.At(i, j))
		}
		for j := range c {
			norm := (l.x.At(i, j) - mean) / std
			g := grad.At(i, j) * l.Gamma.W.At(0, j)
			out.Set(i, j, (n*g-sumG-norm*sumGN)/(n*std))
		}
	}
	return out
}

func (l *LayerNorm) rowStats(i int) (mean, std float64) {
	_, c := l.x.Dims()
	n := float64(c)
	for j := range c {
		mean += l.x.At(i, j)
	}
	mean /= n
	variance := 0.0
	for j := range c {
		d := l.x.At(i, j) - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance + l.eps)
}

// Params returns the layer's trainable parameters.
func (l *LayerNorm) Params() []*Param {
	return []*Param{l.Gamma, l.Beta}
}

// Dropout zeroes activations with probability rate during training and
// rescales survivors (inverted dropout). Inference passes through unchanged.
type Dropout struct {
	rate float64
	rng  *rand.Rand

	mask *mat.Dense
}

// NewDropout creates a dropout layer driven by the shared seeded rng.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{rate: rate, rng: rng}
}

// Forward applies dropout when train is set.
func (d *Dropout) Forward(x *mat.Dense, train bool) *mat.Dense {
	if !train || d.rate <= 0 {
		d.mask = nil
		return x
	}
	r, c := x.Dims()
	d.mask = mat.NewDense(r, c, nil)
	out := mat.NewDense(r, c, nil)
	keep := 1 - d.rate
	for i := range r {
		for j := range c {
			if d.rng.Float64() < keep {
				d.mask.Set(i, j, 1/keep)
				out.Set(i, j, x.At(i, j)/keep)
			}
		}
	}
	return out
}

// Backward applies the cached mask.
func (d *Dropout) Backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	var out mat.Dense
	out.MulElem(grad, d.mask)
	return &out
}
