package classifier

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/crf"
	"github.com/happyhackingspace/diet/internal/nn"
)

// network is the joint model: projections bring sequence and sentence text
// features into the transformer dimension, a shared encoder produces
// contextual states, and per-task heads sit on top. Heads are built only for
// the groups the data signature declares, so a model trained without entity
// annotations carries no CRF.
type network struct {
	cfg *Config
	rng *rand.Rand

	seqProj  *nn.Dense // text sequence dim -> transformer size
	sentProj *nn.Dense // text sentence dim -> transformer size
	encoder  *nn.Encoder

	textEmbed  *nn.Dense // transformer size -> embedding dim
	labelEmbed *nn.Dense // label feature dim -> embedding dim

	entityHead *nn.Dense // transformer size -> tag count
	crfLayer   *crf.Layer

	mlmHead *nn.Dense // transformer size -> transformer size
	maskVec *nn.Param // 1 x transformer size, learned mask token

	numTags int
}

func newNetwork(cfg *Config, sig DataSignature, rng *rand.Rand) *network {
	n := &network{cfg: cfg, rng: rng}
	h := cfg.TransformerSize

	text := sig[GroupText]
	if text.Sequence {
		n.seqProj = nn.NewDense("text.sequence_projection", text.SequenceDim, h, rng)
	}
	if text.Sentence {
		n.sentProj = nn.NewDense("text.sentence_projection", text.SentenceDim, h, rng)
	}
	n.encoder = nn.NewEncoder("encoder", cfg.TransformerLayers, h, 2*h, cfg.AttentionHeads, cfg.DropRate, rng)

	if label, ok := sig[GroupLabel]; ok {
		n.textEmbed = nn.NewDense("embed.text", h, cfg.EmbeddingDim, rng)
		n.labelEmbed = nn.NewDense("embed.label", label.SentenceDim, cfg.EmbeddingDim, rng)
	}

	if entities, ok := sig[GroupEntities]; ok {
		n.numTags = entities.SequenceDim
		n.entityHead = nn.NewDense("entity.head", h, n.numTags, rng)
		n.crfLayer = crf.NewLayer(n.numTags)
	}

	if cfg.MaskedLM && text.Sequence {
		n.mlmHead = nn.NewDense("mlm.head", h, h, rng)
		n.maskVec = nn.NewParam("mlm.mask", 1, h, rng)
	}

	return n
}

// params returns all trainable parameters in a stable order; persistence
// relies on this ordering.
func (n *network) params() []*nn.Param {
	var out []*nn.Param
	if n.seqProj != nil {
		out = append(out, n.seqProj.Params()...)
	}
	if n.sentProj != nil {
		out = append(out, n.sentProj.Params()...)
	}
	out = append(out, n.encoder.Params()...)
	if n.textEmbed != nil {
		out = append(out, n.textEmbed.Params()...)
		out = append(out, n.labelEmbed.Params()...)
	}
	if n.entityHead != nil {
		out = append(out, n.entityHead.Params()...)
		out = append(out, n.crfLayer.Params()...)
	}
	if n.mlmHead != nil {
		out = append(out, n.mlmHead.Params()...)
		out = append(out, n.maskVec)
	}
	return out
}

// encoded carries the forward-pass state of one example that the backward
// pass and the task heads need.
type encoded struct {
	states      *mat.Dense // (numTokens [+1]) x transformer size
	numTokens   int
	hasSentence bool
	attention   []*mat.Dense

	projTokens *mat.Dense // clean projected tokens, masked-token targets
	masked     []int      // row indices replaced by the mask vector
}

// forwardText projects the example's text features, optionally masks tokens,
// and runs the encoder. The sentence-level feature, when present, is
// appended as a final pseudo-token whose output state represents the whole
// message.
func (n *network) forwardText(seq, sent *mat.Dense, train, maskTokens bool) *encoded {
	e := &encoded{}

	var rows []*mat.Dense
	if n.seqProj != nil && seq != nil {
		tokens := n.seqProj.Forward(seq)
		e.numTokens, _ = tokens.Dims()
		rows = append(rows, tokens)
	}
	if n.sentProj != nil && sent != nil {
		rows = append(rows, n.sentProj.Forward(sent))
		e.hasSentence = true
	}
	inputs := vstack(rows)

	if maskTokens && n.maskVec != nil && e.numTokens > 0 {
		e.projTokens = mat.DenseCopyOf(inputs.Slice(0, e.numTokens, 0, n.cfg.TransformerSize))
		for i := range e.numTokens {
			if n.rng.Float64() < n.cfg.MaskRate {
				e.masked = append(e.masked, i)
				for j := range n.cfg.TransformerSize {
					inputs.Set(i, j, n.maskVec.W.At(0, j))
				}
			}
		}
	}

	e.states, e.attention = n.encoder.Forward(inputs, train)
	return e
}

// backwardText propagates a gradient on the encoder states down to the
// projections. Gradients at masked rows flow into the mask vector instead of
// the sequence projection, since the projection output was replaced there.
func (n *network) backwardText(e *encoded, gradStates *mat.Dense) {
	gradInputs := n.encoder.Backward(gradStates)

	for _, i := range e.masked {
		for j := range n.cfg.TransformerSize {
			n.maskVec.Grad.Set(0, j, n.maskVec.Grad.At(0, j)+gradInputs.At(i, j))
			gradInputs.Set(i, j, 0)
		}
	}

	total, h := gradInputs.Dims()
	if e.hasSentence {
		n.sentProj.Backward(mat.DenseCopyOf(gradInputs.Slice(total-1, total, 0, h)))
		total--
	}
	if e.numTokens > 0 {
		n.seqProj.Backward(mat.DenseCopyOf(gradInputs.Slice(0, total, 0, h)))
	}
}

// sentenceState returns the 1 x H state representing the whole message: the
// sentence pseudo-token when present, otherwise the last real token.
func (e *encoded) sentenceState() *mat.Dense {
	r, h := e.states.Dims()
	return mat.DenseCopyOf(e.states.Slice(r-1, r, 0, h))
}

// tokenStates returns the numTokens x H slice of token states.
func (e *encoded) tokenStates() *mat.Dense {
	_, h := e.states.Dims()
	return mat.DenseCopyOf(e.states.Slice(0, e.numTokens, 0, h))
}

// embedLabels maps the label feature matrix into the embedding space,
// caching for a later backward call.
func (n *network) embedLabels(labelFeatures *mat.Dense) *mat.Dense {
	return n.labelEmbed.Forward(labelFeatures)
}

// similarities returns the dot product of the text embedding with every
// label embedding.
func similarities(textVec, labelEmb *mat.Dense) []float64 {
	l, e := labelEmb.Dims()
	sims := make([]float64, l)
	for i := range l {
		for j := range e {
			sims[i] += textVec.At(0, j) * labelEmb.At(i, j)
		}
	}
	return sims
}

// intentLoss scores the text embedding against all label embeddings and
// returns the loss with gradients for both sides. gradLabels is accumulated
// into by the caller across a batch before the label FFN backward runs.
func (n *network) intentLoss(textVec, labelEmb *mat.Dense, gold int) (float64, *mat.Dense, *mat.Dense) {
	l, _ := labelEmb.Dims()
	sims := similarities(textVec, labelEmb)
	dsims := make([]float64, l)
	var loss float64

	switch {
	case n.cfg.LossType == LossMargin:
		// Hinge on the gold similarity and the hardest negative.
		loss += math.Max(0, n.cfg.MaxPosSim-sims[gold])
		if n.cfg.MaxPosSim-sims[gold] > 0 {
			dsims[gold] = -1
		}
		negBest, negIdx := math.Inf(-1), -1
		for i, s := range sims {
			if i != gold && s > negBest {
				negBest, negIdx = s, i
			}
		}
		if negIdx >= 0 {
			loss += math.Max(0, n.cfg.MaxNegSim+negBest)
			if n.cfg.MaxNegSim+negBest > 0 {
				dsims[negIdx] += 1
			}
		}

	case n.cfg.ConstrainSimilarities:
		// Sigmoid cross-entropy over each label independently keeps
		// similarities bounded instead of letting softmax scale freely.
		for i, s := range sims {
			target := 0.0
			if i == gold {
				target = 1
			}
			p := 1 / (1 + math.Exp(-s))
			loss -= target*math.Log(p+1e-12) + (1-target)*math.Log(1-p+1e-12)
			dsims[i] = p - target
		}

	default:
		probs := nn.Softmax(sims)
		loss = -math.Log(probs[gold] + 1e-12)
		copy(dsims, probs)
		dsims[gold] -= 1
	}

	_, e := textVec.Dims()
	gradText := mat.NewDense(1, e, nil)
	gradLabels := mat.NewDense(l, e, nil)
	for i := range l {
		for j := range e {
			gradText.Set(0, j, gradText.At(0, j)+dsims[i]*labelEmb.At(i, j))
			gradLabels.Set(i, j, dsims[i]*textVec.At(0, j))
		}
	}
	return loss, gradText, gradLabels
}

// mlmLoss predicts which original token each masked position held: the
// masked state is mapped through the reconstruction head and scored against
// the clean projected tokens with cross-entropy over positions. The targets
// are treated as constants. Gradients are scattered into gradStates.
func (n *network) mlmLoss(e *encoded, gradStates *mat.Dense) float64 {
	if len(e.masked) == 0 {
		return 0
	}
	m := len(e.masked)
	h := n.cfg.TransformerSize

	maskedStates := mat.NewDense(m, h, nil)
	for mi, row := range e.masked {
		for j := range h {
			maskedStates.Set(mi, j, e.states.At(row, j))
		}
	}

	out := n.mlmHead.Forward(maskedStates)
	var scores mat.Dense
	scores.Mul(out, e.projTokens.T())
	probs := nn.SoftmaxRows(&scores)

	loss := 0.0
	dscores := mat.NewDense(m, e.numTokens, nil)
	for mi, row := range e.masked {
		loss -= math.Log(probs.At(mi, row) + 1e-12)
		for t := range e.numTokens {
			g := probs.At(mi, t)
			if t == row {
				g -= 1
			}
			dscores.Set(mi, t, g)
		}
	}

	var gradOut mat.Dense
	gradOut.Mul(dscores, e.projTokens)
	gradMasked := n.mlmHead.Backward(&gradOut)
	for mi, row := range e.masked {
		for j := range h {
			gradStates.Set(row, j, gradStates.At(row, j)+gradMasked.At(mi, j))
		}
	}
	return loss
}

// inference bundles the raw model outputs for one message.
type inference struct {
	sims    []float64
	tagPath []int
	tagConf []float64

	attention []*mat.Dense
	states    *mat.Dense
}

// infer runs the forward pass without dropout or masking and decodes both
// task heads.
func (n *network) infer(seq, sent, labelFeatures *mat.Dense) *inference {
	e := n.forwardText(seq, sent, false, false)
	out := &inference{attention: e.attention, states: e.states}

	if n.textEmbed != nil && labelFeatures != nil {
		labelEmb := n.embedLabels(labelFeatures)
		textVec := n.textEmbed.Forward(e.sentenceState())
		out.sims = similarities(textVec, labelEmb)
	}

	if n.entityHead != nil && e.numTokens > 0 {
		emissions := n.entityHead.Forward(e.tokenStates())
		out.tagPath = n.crfLayer.Decode(emissions)
		marginals := n.crfLayer.Marginals(emissions)
		out.tagConf = make([]float64, len(out.tagPath))
		for i, tag := range out.tagPath {
			out.tagConf[i] = marginals.At(i, tag)
		}
	}
	return out
}

// vstack concatenates matrices with equal column counts row-wise.
func vstack(rows []*mat.Dense) *mat.Dense {
	total, cols := 0, 0
	for _, m := range rows {
		r, c := m.Dims()
		total += r
		cols = c
	}
	out := mat.NewDense(total, cols, nil)
	offset := 0
	for _, m := range rows {
		r, _ := m.Dims()
		for i := range r {
			for j := range cols {
				out.Set(offset+i, j, m.At(i, j))
			}
		}
		offset += r
	}
	return out
}
