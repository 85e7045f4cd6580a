package classifier

// Feature groups of the built training data.
const (
	GroupText     = "text"
	GroupLabel    = "label"
	GroupEntities = "entities"
)

// FeatureSignature records which feature levels a group carries and their
// dimensions. For the entities group SequenceDim holds the tag count.
type FeatureSignature struct {
	Sequence    bool `json:"sequence"`
	Sentence    bool `json:"sentence"`
	SequenceDim int  `json:"sequence_dim,omitempty"`
	SentenceDim int  `json:"sentence_dim,omitempty"`
}

// DataSignature describes the shape of the data a model was trained on. It
// is persisted with the model and used to rebuild the network on load; the
// entities group is present only when the training data contained at least
// one example with annotated entities and tokens.
type DataSignature map[string]FeatureSignature
