package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam implements the Adam update rule with bias correction.
type Adam struct {
	params []*Param
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64

	m []*mat.Dense
	v []*mat.Dense
	t int
}

// NewAdam creates an optimizer over the given parameters.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
	}
	for _, p := range params {
		r, c := p.W.Dims()
		a.m = append(a.m, mat.NewDense(r, c, nil))
		a.v = append(a.v, mat.NewDense(r, c, nil))
	}
	return a
}

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	bias1 := 1 - math.Pow(a.beta1, float64(a.t))
	bias2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i, p := range a.params {
		r, c := p.W.Dims()
		for x := range r {
			for y := range c {
				g := p.Grad.At(x, y)
				m := a.beta1*a.m[i].At(x, y) + (1-a.beta1)*g
				v := a.beta2*a.v[i].At(x, y) + (1-a.beta2)*g*g
				a.m[i].Set(x, y, m)
				a.v[i].Set(x, y, v)
				update := a.lr * (m / bias1) / (math.Sqrt(v/bias2) + a.eps)
				p.W.Set(x, y, p.W.At(x, y)-update)
			}
		}
	}
}

// ZeroGrad clears all gradients.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}
