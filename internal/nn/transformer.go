package nn

import (
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// EncoderLayer is one pre-norm-free transformer block: self-attention with a
// residual connection and layer norm, then a position-wise feed-forward
// network with a second residual and norm.
type EncoderLayer struct {
	attn  *MultiHeadAttention
	norm1 *LayerNorm
	norm2 *LayerNorm
	ff1   *Dense
	ff2   *Dense
	act   *ReLU
	drop1 *Dropout
	drop2 *Dropout
}

// NewEncoderLayer creates a transformer block.
func NewEncoderLayer(name string, dim, ffDim, heads int, dropRate float64, rng *rand.Rand) *EncoderLayer {
	return &EncoderLayer{
		attn:  NewMultiHeadAttention(name+".attn", dim, heads, rng),
		norm1: NewLayerNorm(name+".norm1", dim),
		norm2: NewLayerNorm(name+".norm2", dim),
		ff1:   NewDense(name+".ff1", dim, ffDim, rng),
		ff2:   NewDense(name+".ff2", ffDim, dim, rng),
		act:   &ReLU{},
		drop1: NewDropout(dropRate, rng),
		drop2: NewDropout(dropRate, rng),
	}
}

// Forward runs the block; returns the transformed states and the attention
// probabilities of this layer.
func (e *EncoderLayer) Forward(x *mat.Dense, train bool) (*mat.Dense, []*mat.Dense) {
	a, probs := e.attn.Forward(x)
	a = e.drop1.Forward(a, train)
	h := e.norm1.Forward(add(x, a))

	f := e.ff2.Forward(e.act.Forward(e.ff1.Forward(h)))
	f = e.drop2.Forward(f, train)
	y := e.norm2.Forward(add(h, f))
	return y, probs
}

// Backward propagates through both sub-blocks and their residuals.
func (e *EncoderLayer) Backward(grad *mat.Dense) *mat.Dense {
	gh := e.norm2.Backward(grad)
	gf := e.drop2.Backward(gh)
	gf = e.ff1.Backward(e.act.Backward(e.ff2.Backward(gf)))
	gh = add(gh, gf)

	gx := e.norm1.Backward(gh)
	ga := e.drop1.Backward(gx)
	ga = e.attn.Backward(ga)
	return add(gx, ga)
}

// Params returns all block parameters.
func (e *EncoderLayer) Params() []*Param {
	var out []*Param
	out = append(out, e.attn.Params()...)
	out = append(out, e.norm1.Params()...)
	out = append(out, e.norm2.Params()...)
	out = append(out, e.ff1.Params()...)
	out = append(out, e.ff2.Params()...)
	return out
}

// Encoder is a stack of transformer blocks over positionally-encoded inputs.
type Encoder struct {
	layers []*EncoderLayer
	dim    int
}

// NewEncoder creates an encoder with the given number of blocks.
func NewEncoder(name string, numLayers, dim, ffDim, heads int, dropRate float64, rng *rand.Rand) *Encoder {
	enc := &Encoder{dim: dim}
	for i := range numLayers {
		enc.layers = append(enc.layers,
			NewEncoderLayer(name+"."+strconv.Itoa(i), dim, ffDim, heads, dropRate, rng))
	}
	return enc
}

// Forward encodes x (T x dim), adding sinusoidal positional encodings first.
// Returns the final states and the last layer's attention probabilities.
func (enc *Encoder) Forward(x *mat.Dense, train bool) (*mat.Dense, []*mat.Dense) {
	h := addPositional(x)
	var probs []*mat.Dense
	for _, l := range enc.layers {
		h, probs = l.Forward(h, train)
	}
	return h, probs
}

// Backward propagates through the stack. Positional encoding is additive, so
// the gradient passes through unchanged.
func (enc *Encoder) Backward(grad *mat.Dense) *mat.Dense {
	for i := len(enc.layers) - 1; i >= 0; i-- {
		grad = enc.layers[i].Backward(grad)
	}
	return grad
}

// Params returns all encoder parameters.
func (enc *Encoder) Params() []*Param {
	var out []*Param
	for _, l := range enc.layers {
		out = append(out, l.Params()...)
	}
	return out
}

// addPositional adds the fixed sinusoidal position signal.
func addPositional(x *mat.Dense) *mat.Dense {
	t, d := x.Dims()
	out := mat.NewDense(t, d, nil)
	for pos := range t {
		for j := range d {
			angle := float64(pos) / math.Pow(10000, float64(2*(j/2))/float64(d))
			pe := math.Sin(angle)
			if j%2 == 1 {
				pe = math.Cos(angle)
			}
			out.Set(pos, j, x.At(pos, j)+pe)
		}
	}
	return out
}
