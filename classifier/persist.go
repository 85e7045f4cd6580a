package classifier

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/diet/internal/nn"
	"github.com/happyhackingspace/diet/nlu"
)

// Model artifact file names.
const (
	metadataFile   = "metadata.json"
	weightsFile    = "weights.json"
	checkpointDir  = "checkpoint"
	checkpointMeta = "checkpoint.json"
)

// checkpointState is the best-so-far snapshot taken during training. It is
// replaced only when the validation metric strictly improves.
type checkpointState struct {
	Epoch  int     `json:"epoch"`
	Metric float64 `json:"metric"`

	weights []weightRecord
}

type weightRecord struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type matrixRecord struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type metadata struct {
	Config        *Config          `json:"config"`
	Intents       *nlu.Vocabulary  `json:"intents,omitempty"`
	Tags          *nlu.Vocabulary  `json:"tags,omitempty"`
	Signature     DataSignature    `json:"signature"`
	LabelFeatures *matrixRecord    `json:"label_features,omitempty"`
	Checkpoint    *checkpointState `json:"checkpoint,omitempty"`
}

// Persist writes the trained model under dir: metadata, weights and, when
// checkpointing was enabled, the best checkpoint snapshot in a subdirectory.
func (c *Classifier) Persist(dir string) error {
	if !c.trained {
		return fmt.Errorf("classifier: cannot persist an untrained model")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("classifier: create model directory: %w", err)
	}

	meta := metadata{
		Config:    c.cfg,
		Intents:   c.intents,
		Tags:      c.tagSet,
		Signature: c.sig,
	}
	if c.labelFeatures != nil {
		meta.LabelFeatures = toMatrixRecord(c.labelFeatures)
	}
	if c.best != nil {
		meta.Checkpoint = &checkpointState{Epoch: c.best.Epoch, Metric: c.best.Metric}
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("classifier: encode metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metadataFile), metaData); err != nil {
		return fmt.Errorf("classifier: write metadata: %w", err)
	}

	weightData, err := encodeWeights(snapshotWeights(c.net.params()))
	if err != nil {
		return fmt.Errorf("classifier: encode weights: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, weightsFile), weightData); err != nil {
		return fmt.Errorf("classifier: write weights: %w", err)
	}

	if c.best != nil && c.best.weights != nil {
		sub := filepath.Join(dir, checkpointDir)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("classifier: create checkpoint directory: %w", err)
		}
		if err := writeCheckpoint(sub, c.best); err != nil {
			return err
		}
	}
	return nil
}

// Load restores a persisted model for inference. The returned classifier is
// frozen: Train returns an error.
func Load(dir string) (*Classifier, error) {
	c, err := load(dir)
	if err != nil {
		return nil, err
	}
	c.frozen = true
	return c, nil
}

// LoadForFineTuning restores a persisted model in a trainable state. The
// label space and architecture stay fixed; the training schedule may be
// overridden.
func LoadForFineTuning(dir string, override *Config) (*Classifier, error) {
	c, err := load(dir)
	if err != nil {
		return nil, err
	}
	if override != nil {
		merged := override.clone()
		merged.TransformerLayers = c.cfg.TransformerLayers
		merged.TransformerSize = c.cfg.TransformerSize
		merged.AttentionHeads = c.cfg.AttentionHeads
		merged.EmbeddingDim = c.cfg.EmbeddingDim
		merged.IntentClassification = c.cfg.IntentClassification
		merged.EntityRecognition = c.cfg.EntityRecognition
		merged.MaskedLM = c.cfg.MaskedLM
		merged.BILOU = c.cfg.BILOU
		if err := merged.Validate(); err != nil {
			return nil, err
		}
		c.cfg = merged
		c.policy = resolveRankingPolicy(merged)
	}
	return c, nil
}

func load(dir string) (*Classifier, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("classifier: read model metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("classifier: malformed model metadata: %w", err)
	}
	if meta.Config == nil {
		return nil, fmt.Errorf("classifier: model metadata carries no configuration")
	}
	if err := meta.Config.Validate(); err != nil {
		return nil, fmt.Errorf("classifier: persisted configuration is invalid: %w", err)
	}

	c := &Classifier{
		cfg:     meta.Config,
		intents: meta.Intents,
		tagSet:  meta.Tags,
		sig:     meta.Signature,
		policy:  resolveRankingPolicy(meta.Config),
		trained: true,
	}
	if meta.LabelFeatures != nil {
		c.labelFeatures, err = fromMatrixRecord(meta.LabelFeatures)
		if err != nil {
			return nil, fmt.Errorf("classifier: malformed label features: %w", err)
		}
	}
	if meta.Checkpoint != nil {
		c.best = meta.Checkpoint
	}

	rng := rand.New(rand.NewSource(meta.Config.RandomSeed))
	c.net = newNetwork(meta.Config, meta.Signature, rng)

	weightData, err := os.ReadFile(filepath.Join(dir, weightsFile))
	if err != nil {
		return nil, fmt.Errorf("classifier: read model weights: %w", err)
	}
	var records []weightRecord
	if err := json.Unmarshal(weightData, &records); err != nil {
		return nil, fmt.Errorf("classifier: malformed model weights: %w", err)
	}
	if err := applyWeights(c.net.params(), records); err != nil {
		return nil, err
	}
	return c, nil
}

// saveCheckpoint snapshots the current weights as the new best state and
// writes it to the checkpoint directory. The write goes through a temporary
// file and a rename, so an interrupted run keeps the previous snapshot.
func (c *Classifier) saveCheckpoint(epoch int, metric float64) error {
	c.best = &checkpointState{
		Epoch:   epoch,
		Metric:  metric,
		weights: snapshotWeights(c.net.params()),
	}
	return writeCheckpoint(c.checkpointDir, c.best)
}

func writeCheckpoint(dir string, cp *checkpointState) error {
	metaData, err := json.Marshal(struct {
		Epoch  int     `json:"epoch"`
		Metric float64 `json:"metric"`
	}{cp.Epoch, cp.Metric})
	if err != nil {
		return fmt.Errorf("classifier: encode checkpoint: %w", err)
	}
	weightData, err := encodeWeights(cp.weights)
	if err != nil {
		return fmt.Errorf("classifier: encode checkpoint weights: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, weightsFile), weightData); err != nil {
		return fmt.Errorf("classifier: write checkpoint weights: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, checkpointMeta), metaData); err != nil {
		return fmt.Errorf("classifier: write checkpoint: %w", err)
	}
	return nil
}

func snapshotWeights(params []*nn.Param) []weightRecord {
	out := make([]weightRecord, len(params))
	for i, p := range params {
		r, cols := p.W.Dims()
		data := make([]float64, 0, r*cols)
		for x := range r {
			for y := range cols {
				data = append(data, p.W.At(x, y))
			}
		}
		out[i] = weightRecord{Name: p.Name, Rows: r, Cols: cols, Data: data}
	}
	return out
}

func encodeWeights(records []weightRecord) ([]byte, error) {
	return json.Marshal(records)
}

func applyWeights(params []*nn.Param, records []weightRecord) error {
	byName := make(map[string]weightRecord, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}
	for _, p := range params {
		rec, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("classifier: persisted weights are missing parameter %q", p.Name)
		}
		r, cols := p.W.Dims()
		if rec.Rows != r || rec.Cols != cols || len(rec.Data) != r*cols {
			return fmt.Errorf("classifier: parameter %q has shape %dx%d, persisted %dx%d",
				p.Name, r, cols, rec.Rows, rec.Cols)
		}
		for x := range r {
			for y := range cols {
				p.W.Set(x, y, rec.Data[x*cols+y])
			}
		}
	}
	return nil
}

func toMatrixRecord(m *mat.Dense) *matrixRecord {
	r, cols := m.Dims()
	data := make([]float64, 0, r*cols)
	for x := range r {
		for y := range cols {
			data = append(data, m.At(x, y))
		}
	}
	return &matrixRecord{Rows: r, Cols: cols, Data: data}
}

func fromMatrixRecord(rec *matrixRecord) (*mat.Dense, error) {
	if rec.Rows <= 0 || rec.Cols <= 0 || len(rec.Data) != rec.Rows*rec.Cols {
		return nil, fmt.Errorf("matrix record %dx%d with %d values", rec.Rows, rec.Cols, len(rec.Data))
	}
	return mat.NewDense(rec.Rows, rec.Cols, rec.Data), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
