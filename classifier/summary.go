package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// summaryWriter records training progress under a log directory: a
// model-graph description written once at startup and an append-only
// scalar log with one JSON record per tracked value.
type summaryWriter struct {
	level   string
	scalars *os.File
	enc     *json.Encoder
}

type scalarRecord struct {
	Tag   string  `json:"tag"`
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

func newSummaryWriter(dir, level string) (*summaryWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("classifier: create summary directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "train.scalars.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("classifier: create scalar log: %w", err)
	}
	return &summaryWriter{level: level, scalars: f, enc: json.NewEncoder(f)}, nil
}

// writeGraph dumps a static description of the model (parameter names and
// shapes) next to the scalar log.
func (w *summaryWriter) writeGraph(dir string, graph any) error {
	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "model-graph.json"), data, 0o644)
}

// scalar appends one value. Write errors are deliberately swallowed after
// the writer opened successfully; a failing summary must not abort training.
func (w *summaryWriter) scalar(tag string, step int, value float64) {
	if w == nil {
		return
	}
	_ = w.enc.Encode(scalarRecord{Tag: tag, Step: step, Value: value})
}

// batchScalar records per-batch values only at batch granularity.
func (w *summaryWriter) batchScalar(tag string, step int, value float64) {
	if w == nil || w.level != SummaryBatch {
		return
	}
	w.scalar(tag, step, value)
}

func (w *summaryWriter) close() error {
	if w == nil {
		return nil
	}
	return w.scalars.Close()
}
