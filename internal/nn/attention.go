package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MultiHeadAttention is scaled dot-product self-attention with h heads.
// The model dimension must be divisible by the head count.
type MultiHeadAttention struct {
	heads   int
	dim     int
	headDim int

	wq, wk, wv, wo *Dense

	// forward caches
	q, k, v *mat.Dense
	probs   []*mat.Dense // per head, T x T
	headOut *mat.Dense
}

// NewMultiHeadAttention creates an attention block.
func NewMultiHeadAttention(name string, dim, heads int, rng *rand.Rand) *MultiHeadAttention {
	return &MultiHeadAttention{
		heads:   heads,
		dim:     dim,
		headDim: dim / heads,
		wq:      NewDense(name+".query", dim, dim, rng),
		wk:      NewDense(name+".key", dim, dim, rng),
		wv:      NewDense(name+".value", dim, dim, rng),
		wo:      NewDense(name+".output", dim, dim, rng),
	}
}

// Forward attends each position over all positions of x (T x dim). The
// second return value holds per-head attention probabilities for diagnostics.
func (m *MultiHeadAttention) Forward(x *mat.Dense) (*mat.Dense, []*mat.Dense) {
	t, _ := x.Dims()
	m.q = m.wq.Forward(x)
	m.k = m.wk.Forward(x)
	m.v = m.wv.Forward(x)

	scale := 1 / math.Sqrt(float64(m.headDim))
	m.probs = make([]*mat.Dense, m.heads)
	m.headOut = mat.NewDense(t, m.dim, nil)

	for h := range m.heads {
		qh := m.headSlice(m.q, h)
		kh := m.headSlice(m.k, h)
		vh := m.headSlice(m.v, h)

		var scores mat.Dense
		scores.Mul(qh, kh.T())
		scores.Scale(scale, &scores)
		probs := SoftmaxRows(&scores)
		m.probs[h] = probs

		var out mat.Dense
		out.Mul(probs, vh)
		m.setHeadSlice(m.headOut, h, &out)
	}
	return m.wo.Forward(m.headOut), m.probs
}

// Backward propagates through the output projection, the per-head attention
// and the query/key/value projections.
func (m *MultiHeadAttention) Backward(grad *mat.Dense) *mat.Dense {
	t, _ := grad.Dims()
	gradHead := m.wo.Backward(grad)

	gradQ := mat.NewDense(t, m.dim, nil)
	gradK := mat.NewDense(t, m.dim, nil)
	gradV := mat.NewDense(t, m.dim, nil)
	scale := 1 / math.Sqrt(float64(m.headDim))

	for h := range m.heads {
		qh := m.headSlice(m.q, h)
		kh := m.headSlice(m.k, h)
		vh := m.headSlice(m.v, h)
		gradOh := m.headSlice(gradHead, h)
		probs := m.probs[h]

		gradProbs := matmul(gradOh, vh.T())
		gradVh := matmul(probs.T(), gradOh)
		gradScores := softmaxRowsBackward(probs, gradProbs)
		gradScores.Scale(scale, gradScores)

		gradQh := matmul(gradScores, kh)
		gradKh := matmul(gradScores.T(), qh)

		m.setHeadSlice(gradQ, h, gradQh)
		m.setHeadSlice(gradK, h, gradKh)
		m.setHeadSlice(gradV, h, gradVh)
	}

	gx := m.wq.Backward(gradQ)
	gx = add(gx, m.wk.Backward(gradK))
	gx = add(gx, m.wv.Backward(gradV))
	return gx
}

// headSlice copies head h's columns out of a T x dim matrix.
func (m *MultiHeadAttention) headSlice(x *mat.Dense, h int) *mat.Dense {
	t, _ := x.Dims()
	out := mat.NewDense(t, m.headDim, nil)
	for i := range t {
		for j := range m.headDim {
			out.Set(i, j, x.At(i, h*m.headDim+j))
		}
	}
	return out
}

func (m *MultiHeadAttention) setHeadSlice(dst *mat.Dense, h int, src *mat.Dense) {
	t, _ := src.Dims()
	for i := range t {
		for j := range m.headDim {
			dst.Set(i, h*m.headDim+j, src.At(i, j))
		}
	}
}

// Params returns all projection parameters.
func (m *MultiHeadAttention) Params() []*Param {
	var out []*Param
	for _, d := range []*Dense{m.wq, m.wk, m.wv, m.wo} {
		out = append(out, d.Params()...)
	}
	return out
}
