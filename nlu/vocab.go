package nlu

import "encoding/json"

// Vocabulary maps between label strings and integer ids. It is built once
// from training data and frozen afterwards; a frozen vocabulary never grows.
type Vocabulary struct {
	ids    map[string]int
	labels []string
	frozen bool
}

// NewVocabulary creates an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{ids: make(map[string]int)}
}

// Add inserts a label if not already present and returns its id. Adding to a
// frozen vocabulary returns -1 for unknown labels.
func (v *Vocabulary) Add(label string) int {
	if id, ok := v.ids[label]; ok {
		return id
	}
	if v.frozen {
		return -1
	}
	id := len(v.labels)
	v.ids[label] = id
	v.labels = append(v.labels, label)
	return id
}

// ID returns the id for a label, or -1 if not found.
func (v *Vocabulary) ID(label string) int {
	if id, ok := v.ids[label]; ok {
		return id
	}
	return -1
}

// Label returns the label string for an id, or "" if out of range.
func (v *Vocabulary) Label(id int) string {
	if id < 0 || id >= len(v.labels) {
		return ""
	}
	return v.labels[id]
}

// Size returns the number of labels.
func (v *Vocabulary) Size() int {
	return len(v.labels)
}

// Labels returns all labels in id order. The returned slice must not be
// mutated.
func (v *Vocabulary) Labels() []string {
	return v.labels
}

// Freeze marks the vocabulary immutable.
func (v *Vocabulary) Freeze() {
	v.frozen = true
}

// MarshalJSON serializes the vocabulary as an ordered label list.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.labels)
}

// UnmarshalJSON restores a vocabulary from an ordered label list. Restored
// vocabularies are frozen.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	v.labels = labels
	v.ids = make(map[string]int, len(labels))
	for i, l := range labels {
		v.ids[l] = i
	}
	v.frozen = true
	return nil
}
