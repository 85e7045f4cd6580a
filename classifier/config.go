// Package classifier implements a joint intent classification and entity
// recognition model. A shared transformer encoder produces contextual token
// states; task heads on top of it compute intent similarities against
// embedded labels, per-token entity tags through a CRF, and an optional
// masked-token objective used for regularization during training.
package classifier

import "fmt"

// Loss types for the intent similarity objective.
const (
	LossCrossEntropy = "cross_entropy"
	LossMargin       = "margin"
)

// Confidence modes for reported intent scores.
const (
	ConfidenceSoftmax    = "softmax"
	ConfidenceLinearNorm = "linear_norm"
)

// Training summary granularities.
const (
	SummaryEpoch = "epoch"
	SummaryBatch = "batch"
)

// DefaultRankingLength caps the number of ranked intent candidates a parse
// result carries, independent of the configured ranking length.
const DefaultRankingLength = 10

// Config controls which tasks the model trains, the network architecture and
// the training schedule. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// Task toggles. At least one of IntentClassification and
	// EntityRecognition must be enabled.
	IntentClassification bool `json:"intent_classification" yaml:"intent_classification"`
	EntityRecognition    bool `json:"entity_recognition" yaml:"entity_recognition"`
	MaskedLM             bool `json:"use_masked_language_model" yaml:"use_masked_language_model"`

	// BILOU controls whether entity tags are expanded into
	// begin/inside/last/unit positional variants during training.
	BILOU bool `json:"bilou_flag" yaml:"bilou_flag"`

	LossType              string `json:"loss_type" yaml:"loss_type"`
	ModelConfidence       string `json:"model_confidence" yaml:"model_confidence"`
	ConstrainSimilarities bool   `json:"constrain_similarities" yaml:"constrain_similarities"`

	// RankingLength bounds the intent ranking of a parse result. Zero
	// applies the default cap, a negative value disables truncation.
	RankingLength int `json:"ranking_length" yaml:"ranking_length"`

	// Margin loss parameters, only used when LossType is "margin".
	MaxPosSim float64 `json:"maximum_positive_similarity" yaml:"maximum_positive_similarity"`
	MaxNegSim float64 `json:"maximum_negative_similarity" yaml:"maximum_negative_similarity"`

	Epochs       int     `json:"epochs" yaml:"epochs"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	RandomSeed   int64   `json:"random_seed" yaml:"random_seed"`

	TransformerLayers int `json:"number_of_transformer_layers" yaml:"number_of_transformer_layers"`
	TransformerSize   int `json:"transformer_size" yaml:"transformer_size"`
	AttentionHeads    int `json:"number_of_attention_heads" yaml:"number_of_attention_heads"`

	// EmbeddingDim is the dimension of the space text and labels are
	// embedded into for similarity scoring.
	EmbeddingDim int     `json:"embedding_dimension" yaml:"embedding_dimension"`
	DropRate     float64 `json:"drop_rate" yaml:"drop_rate"`

	// MaskRate is the fraction of tokens replaced by the learned mask
	// vector when the masked-token objective is enabled.
	MaskRate float64 `json:"mask_rate" yaml:"mask_rate"`

	// EvalNumEpochs controls how often validation loss is computed; a
	// value <= 0 with checkpointing enabled evaluates every epoch.
	// EvalNumExamples is the number of training examples held out for
	// validation; with <= 0 the training loss doubles as the metric.
	EvalNumEpochs   int `json:"evaluate_every_number_of_epochs" yaml:"evaluate_every_number_of_epochs"`
	EvalNumExamples int `json:"evaluate_on_number_of_examples" yaml:"evaluate_on_number_of_examples"`

	// CheckpointModel persists the weights whenever the validation metric
	// improves; CheckpointDir overrides where snapshots are written during
	// training (a temporary directory when empty).
	CheckpointModel bool   `json:"checkpoint_model" yaml:"checkpoint_model"`
	CheckpointDir   string `json:"-" yaml:"-"`

	// SummaryLogDir enables training summary artifacts when non-empty.
	SummaryLogDir   string `json:"tensorboard_log_directory" yaml:"tensorboard_log_directory"`
	SummaryLogLevel string `json:"tensorboard_log_level" yaml:"tensorboard_log_level"`
}

// DefaultConfig returns the configuration the model ships with: joint intent
// and entity training with cross-entropy loss and softmax confidences.
func DefaultConfig() *Config {
	return &Config{
		IntentClassification:  true,
		EntityRecognition:     true,
		MaskedLM:              false,
		BILOU:                 true,
		LossType:              LossCrossEntropy,
		ModelConfidence:       ConfidenceSoftmax,
		ConstrainSimilarities: false,
		RankingLength:         DefaultRankingLength,
		MaxPosSim:             0.8,
		MaxNegSim:             -0.4,
		Epochs:                300,
		BatchSize:             64,
		LearningRate:          0.001,
		RandomSeed:            1,
		TransformerLayers:     2,
		TransformerSize:       64,
		AttentionHeads:        4,
		EmbeddingDim:          20,
		DropRate:              0.2,
		MaskRate:              0.15,
		EvalNumEpochs:         20,
		EvalNumExamples:       0,
		CheckpointModel:       false,
		SummaryLogLevel:       SummaryEpoch,
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if !c.IntentClassification && !c.EntityRecognition {
		return fmt.Errorf("classifier: at least one of intent classification and entity recognition must be enabled")
	}
	switch c.LossType {
	case LossCrossEntropy, LossMargin:
	default:
		return fmt.Errorf("classifier: unknown loss type %q", c.LossType)
	}
	switch c.ModelConfidence {
	case ConfidenceSoftmax, ConfidenceLinearNorm:
	default:
		return fmt.Errorf("classifier: unknown model confidence %q", c.ModelConfidence)
	}
	switch c.SummaryLogLevel {
	case SummaryEpoch, SummaryBatch:
	default:
		return fmt.Errorf("classifier: unknown summary log level %q", c.SummaryLogLevel)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("classifier: epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("classifier: batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("classifier: learning rate must be positive, got %g", c.LearningRate)
	}
	if c.TransformerLayers <= 0 {
		return fmt.Errorf("classifier: need at least one transformer layer, got %d", c.TransformerLayers)
	}
	if c.AttentionHeads <= 0 || c.TransformerSize%c.AttentionHeads != 0 {
		return fmt.Errorf("classifier: transformer size %d must be divisible by attention heads %d",
			c.TransformerSize, c.AttentionHeads)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("classifier: embedding dimension must be positive, got %d", c.EmbeddingDim)
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("classifier: drop rate must be in [0, 1), got %g", c.DropRate)
	}
	if c.MaskedLM && (c.MaskRate <= 0 || c.MaskRate >= 1) {
		return fmt.Errorf("classifier: mask rate must be in (0, 1), got %g", c.MaskRate)
	}
	return nil
}

// clone returns a copy of the config so loaded models cannot be mutated
// through the caller's struct.
func (c *Config) clone() *Config {
	d := *c
	return &d
}
