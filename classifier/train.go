package classifier

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/internal/nn"
	"github.com/happyhackingspace/diet/nlu"
)

// Train fits the model on featurized examples. Calling Train on a model
// loaded for fine-tuning continues from the persisted weights with the
// original label space; calling it on a frozen model is an error.
func (c *Classifier) Train(examples []*nlu.Example) error {
	if c.frozen {
		return fmt.Errorf("classifier: model was loaded for inference only")
	}

	data, err := buildModelData(examples, c.cfg, c.intents, c.tagSet)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(c.cfg.RandomSeed))

	if c.net == nil {
		data.intents.Freeze()
		data.tagSet.Freeze()
		c.intents = data.intents
		c.tagSet = data.tagSet
		c.sig = data.sig
		c.labelFeatures = data.labelFeatures
		c.net = newNetwork(c.cfg, c.sig, rng)
	} else if !signatureEqual(c.sig, data.sig) {
		return fmt.Errorf("classifier: data signature changed since the model was trained: %v vs %v",
			data.sig, c.sig)
	} else {
		c.labelFeatures = data.labelFeatures
	}

	return c.fit(data, rng)
}

// fit runs the optimization loop over the built model data.
func (c *Classifier) fit(data *modelData, rng *rand.Rand) error {
	var summary *summaryWriter
	if c.cfg.SummaryLogDir != "" {
		var err error
		summary, err = newSummaryWriter(c.cfg.SummaryLogDir, c.cfg.SummaryLogLevel)
		if err != nil {
			return err
		}
		defer summary.close()
		if err := summary.writeGraph(c.cfg.SummaryLogDir, c.graphDescription()); err != nil {
			return fmt.Errorf("classifier: write model graph: %w", err)
		}
	}

	if c.cfg.CheckpointModel && c.checkpointDir == "" {
		dir := c.cfg.CheckpointDir
		if dir == "" {
			var err error
			if dir, err = os.MkdirTemp("", "diet-checkpoint-"); err != nil {
				return fmt.Errorf("classifier: create checkpoint directory: %w", err)
			}
		}
		c.checkpointDir = dir
	}

	trainIdx, valIdx := c.splitValidation(len(data.examples), rng)

	evalEvery := c.cfg.EvalNumEpochs
	if c.cfg.CheckpointModel && (evalEvery <= 0 || evalEvery > c.cfg.Epochs) {
		evalEvery = 1
	}

	adam := nn.NewAdam(c.net.params(), c.cfg.LearningRate)
	batchStep := 0

	for epoch := 1; epoch <= c.cfg.Epochs; epoch++ {
		rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		epochLoss := 0.0
		for start := 0; start < len(trainIdx); start += c.cfg.BatchSize {
			end := min(start+c.cfg.BatchSize, len(trainIdx))
			batchLoss := c.trainBatch(data, trainIdx[start:end], adam)
			epochLoss += batchLoss * float64(end-start)

			batchStep++
			summary.batchScalar("train.batch_loss", batchStep, batchLoss)
		}
		epochLoss /= float64(len(trainIdx))
		summary.scalar("train.loss", epoch, epochLoss)
		slog.Debug("Training epoch", "epoch", epoch, "loss", epochLoss)

		if evalEvery > 0 && (epoch%evalEvery == 0 || epoch == c.cfg.Epochs) {
			metric := epochLoss
			if len(valIdx) > 0 {
				metric = c.validationLoss(data, valIdx)
			}
			summary.scalar("val.loss", epoch, metric)

			if c.cfg.CheckpointModel && (c.best == nil || metric < c.best.Metric) {
				if err := c.saveCheckpoint(epoch, metric); err != nil {
					return err
				}
				slog.Info("Checkpoint", "epoch", epoch, "metric", metric)
			}
		}
	}

	c.trained = true
	slog.Info("Training complete", "epochs", c.cfg.Epochs, "examples", len(data.examples))
	return nil
}

// trainBatch accumulates gradients over a batch and applies one optimizer
// step; returns the mean loss per example.
func (c *Classifier) trainBatch(data *modelData, batch []int, adam *nn.Adam) float64 {
	adam.ZeroGrad()

	var labelEmb, gradLabelEmb *mat.Dense
	if c.net.labelEmbed != nil {
		labelEmb = c.net.embedLabels(data.labelFeatures)
		r, cols := labelEmb.Dims()
		gradLabelEmb = mat.NewDense(r, cols, nil)
	}

	total := 0.0
	for _, idx := range batch {
		total += c.trainExample(data, idx, labelEmb, gradLabelEmb)
	}

	if gradLabelEmb != nil {
		c.net.labelEmbed.Backward(gradLabelEmb)
	}
	adam.Step()
	return total / float64(len(batch))
}

// trainExample runs the forward and backward pass for one example,
// accumulating parameter gradients and the shared label-embedding gradient.
func (c *Classifier) trainExample(data *modelData, idx int, labelEmb, gradLabelEmb *mat.Dense) float64 {
	enc := c.net.forwardText(data.textSeq[idx], data.textSent[idx], true, c.cfg.MaskedLM)
	rows, cols := enc.states.Dims()
	gradStates := mat.NewDense(rows, cols, nil)
	loss := 0.0

	if gold := data.labelIDs[idx]; gold >= 0 && labelEmb != nil {
		textVec := c.net.textEmbed.Forward(enc.sentenceState())
		l, gText, gLabels := c.net.intentLoss(textVec, labelEmb, gold)
		loss += l
		gradLabelEmb.Add(gradLabelEmb, gLabels)

		gSent := c.net.textEmbed.Backward(gText)
		for j := range cols {
			gradStates.Set(rows-1, j, gradStates.At(rows-1, j)+gSent.At(0, j))
		}
	}

	if tags := data.tagIDs[idx]; tags != nil && c.net.entityHead != nil && len(tags) == enc.numTokens {
		emissions := c.net.entityHead.Forward(enc.tokenStates())
		nll, gradEmit := c.net.crfLayer.Loss(emissions, tags)
		loss += nll

		gTok := c.net.entityHead.Backward(gradEmit)
		for i := range enc.numTokens {
			for j := range cols {
				gradStates.Set(i, j, gradStates.At(i, j)+gTok.At(i, j))
			}
		}
	}

	if c.cfg.MaskedLM && c.net.mlmHead != nil {
		loss += c.net.mlmLoss(enc, gradStates)
	}

	c.net.backwardText(enc, gradStates)
	return loss
}

// validationLoss computes the forward-only loss on held-out examples. The
// CRF loss call accumulates transition gradients as a side effect; they are
// cleared at the start of the next batch.
func (c *Classifier) validationLoss(data *modelData, idx []int) float64 {
	var labelEmb *mat.Dense
	if c.net.labelEmbed != nil {
		labelEmb = c.net.embedLabels(data.labelFeatures)
	}

	total := 0.0
	for _, i := range idx {
		enc := c.net.forwardText(data.textSeq[i], data.textSent[i], false, false)
		if gold := data.labelIDs[i]; gold >= 0 && labelEmb != nil {
			textVec := c.net.textEmbed.Forward(enc.sentenceState())
			l, _, _ := c.net.intentLoss(textVec, labelEmb, gold)
			total += l
		}
		if tags := data.tagIDs[i]; tags != nil && c.net.entityHead != nil && len(tags) == enc.numTokens {
			emissions := c.net.entityHead.Forward(enc.tokenStates())
			nll, _ := c.net.crfLayer.Loss(emissions, tags)
			total += nll
		}
	}
	if len(idx) == 0 {
		return math.Inf(1)
	}
	return total / float64(len(idx))
}

// splitValidation holds out up to EvalNumExamples examples. At least one
// training example always remains.
func (c *Classifier) splitValidation(n int, rng *rand.Rand) (train, val []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	valN := c.cfg.EvalNumExamples
	if valN <= 0 {
		return idx, nil
	}
	if valN >= n {
		valN = n - 1
	}
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx[valN:], idx[:valN]
}

// graphDescription lists parameter names and shapes for the summary graph
// artifact.
func (c *Classifier) graphDescription() any {
	type node struct {
		Name string `json:"name"`
		Rows int    `json:"rows"`
		Cols int    `json:"cols"`
	}
	var nodes []node
	for _, p := range c.net.params() {
		r, cols := p.W.Dims()
		nodes = append(nodes, node{Name: p.Name, Rows: r, Cols: cols})
	}
	return map[string]any{
		"transformer_layers": c.cfg.TransformerLayers,
		"transformer_size":   c.cfg.TransformerSize,
		"attention_heads":    c.cfg.AttentionHeads,
		"parameters":         nodes,
	}
}

func signatureEqual(a, b DataSignature) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
