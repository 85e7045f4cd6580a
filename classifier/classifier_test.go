package classifier

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/happyhackingspace/diet/nlu"
)

func trainClassifier(t *testing.T, cfg *Config) (*Classifier, []*nlu.Example) {
	t.Helper()
	examples := trainingSet()
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Train(examples); err != nil {
		t.Fatal(err)
	}
	return c, examples
}

func TestTrainAndPredictIntent(t *testing.T) {
	c, examples := trainClassifier(t, smallConfig())

	res, err := c.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Intent.Name != "book_flight" {
		t.Errorf("intent = %q, want book_flight (ranking %v)", res.Intent.Name, res.IntentRanking)
	}
	if len(res.IntentRanking) != 2 {
		t.Errorf("ranking length = %d, want 2", len(res.IntentRanking))
	}
	if res.Intent != res.IntentRanking[0] {
		t.Errorf("Intent %+v != IntentRanking[0] %+v", res.Intent, res.IntentRanking[0])
	}
	sum := 0.0
	for _, r := range res.IntentRanking {
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence %g outside [0, 1]", r.Confidence)
		}
		sum += r.Confidence
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("softmax confidences sum to %g, want 1", sum)
	}
}

func TestTrainAndPredictEntities(t *testing.T) {
	c, examples := trainClassifier(t, smallConfig())

	res, err := c.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 {
		t.Fatalf("entities = %v, want one", res.Entities)
	}
	e := res.Entities[0]
	if e.Entity != "city" || e.Value != "paris" {
		t.Errorf("entity = %+v, want city/paris", e)
	}
	if e.Start != 17 || e.End != 22 {
		t.Errorf("span = [%d, %d), want [17, 22)", e.Start, e.End)
	}
	if e.Confidence <= 0 || e.Confidence > 1 {
		t.Errorf("confidence = %g", e.Confidence)
	}
}

func TestPredictDiagnostics(t *testing.T) {
	cfg := smallConfig()
	c, examples := trainClassifier(t, cfg)

	res, err := c.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Diagnostics == nil {
		t.Fatal("no diagnostics attached")
	}
	if len(res.Diagnostics.AttentionWeights) != cfg.AttentionHeads {
		t.Errorf("attention heads = %d, want %d",
			len(res.Diagnostics.AttentionWeights), cfg.AttentionHeads)
	}
	rows, _ := res.Diagnostics.TextTransformed.Dims()
	// tokens plus the sentence pseudo-token
	if want := len(examples[0].Tokens) + 1; rows != want {
		t.Errorf("transformed rows = %d, want %d", rows, want)
	}
}

func TestPredictUntrained(t *testing.T) {
	c, err := New(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Predict(example("hello", "")); err == nil {
		t.Error("expected an error from an untrained model")
	}
}

func TestMarginLossLifecycle(t *testing.T) {
	cfg := smallConfig()
	cfg.LossType = LossMargin

	c, examples := trainClassifier(t, cfg)
	res, err := c.Predict(examples[2])
	if err != nil {
		t.Fatal(err)
	}
	if res.Intent.Name != "greet" {
		t.Errorf("intent = %q, want greet", res.Intent.Name)
	}
	// margin mode reports raw similarities, not a distribution
	if len(res.IntentRanking) != 2 {
		t.Errorf("ranking length = %d, want 2", len(res.IntentRanking))
	}
}

func TestMaskedLMTraining(t *testing.T) {
	cfg := smallConfig()
	cfg.MaskedLM = true

	c, examples := trainClassifier(t, cfg)
	res, err := c.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Intent.Name != "book_flight" {
		t.Errorf("intent = %q, want book_flight (ranking %v)", res.Intent.Name, res.IntentRanking)
	}
	for _, r := range res.IntentRanking {
		if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence for %q = %g", r.Name, r.Confidence)
		}
	}
	if len(res.Entities) != 1 || res.Entities[0].Entity != "city" {
		t.Errorf("entities = %v, want one city", res.Entities)
	}
}

func TestConstrainedSimilarityTraining(t *testing.T) {
	cfg := smallConfig()
	cfg.ConstrainSimilarities = true

	c, examples := trainClassifier(t, cfg)
	res, err := c.Predict(examples[2])
	if err != nil {
		t.Fatal(err)
	}
	if res.Intent.Name != "greet" {
		t.Errorf("intent = %q, want greet (ranking %v)", res.Intent.Name, res.IntentRanking)
	}
	sum := 0.0
	for _, r := range res.IntentRanking {
		if math.IsNaN(r.Confidence) {
			t.Errorf("confidence for %q is NaN", r.Name)
		}
		sum += r.Confidence
	}
	// the sigmoid loss changes training, not the softmax confidence policy
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("confidences sum to %g, want 1", sum)
	}
}

func TestSeedDeterminism(t *testing.T) {
	probe := example("book a flight to paris", "")

	confidences := func(seed int64) []float64 {
		cfg := smallConfig()
		cfg.RandomSeed = seed
		c, trained := trainClassifier(t, cfg)
		featurizeLike(trained, probe)
		defer func() { probe.Features = nil }()

		res, err := c.Predict(probe)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]float64, len(res.IntentRanking))
		for i, r := range res.IntentRanking {
			out[i] = r.Confidence
		}
		return out
	}

	a := confidences(42)
	b := confidences(42)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("same seed diverged at %d: %g vs %g", i, a[i], b[i])
		}
	}

	c := confidences(7)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical confidences")
	}
}

func TestPersistLoadParity(t *testing.T) {
	dir := t.TempDir()
	c, examples := trainClassifier(t, smallConfig())

	before, err := c.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Persist(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	after, err := loaded.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}

	if before.Intent != after.Intent {
		t.Errorf("intent changed across reload: %+v vs %+v", before.Intent, after.Intent)
	}
	if len(before.IntentRanking) != len(after.IntentRanking) {
		t.Fatalf("ranking length changed: %d vs %d",
			len(before.IntentRanking), len(after.IntentRanking))
	}
	for i := range before.IntentRanking {
		if before.IntentRanking[i] != after.IntentRanking[i] {
			t.Errorf("ranking[%d] changed: %+v vs %+v",
				i, before.IntentRanking[i], after.IntentRanking[i])
		}
	}
	if len(before.Entities) != len(after.Entities) {
		t.Fatalf("entities changed: %v vs %v", before.Entities, after.Entities)
	}
	for i := range before.Entities {
		if before.Entities[i] != after.Entities[i] {
			t.Errorf("entity[%d] changed: %+v vs %+v",
				i, before.Entities[i], after.Entities[i])
		}
	}
}

func TestLoadedModelIsFrozen(t *testing.T) {
	dir := t.TempDir()
	c, examples := trainClassifier(t, smallConfig())
	if err := c.Persist(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Train(examples); err == nil {
		t.Error("frozen model accepted training")
	}
}

func TestLoadForFineTuning(t *testing.T) {
	dir := t.TempDir()
	c, examples := trainClassifier(t, smallConfig())
	if err := c.Persist(dir); err != nil {
		t.Fatal(err)
	}

	override := smallConfig()
	override.Epochs = 5
	loaded, err := LoadForFineTuning(dir, override)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Train(examples); err != nil {
		t.Fatalf("fine-tuning failed: %v", err)
	}

	res, err := loaded.Predict(examples[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Intent.Name != "book_flight" {
		t.Errorf("intent = %q after fine-tuning", res.Intent.Name)
	}
}

func TestLoadMalformedModel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, metadataFile), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected an error for malformed metadata")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a missing model")
	}
}

func TestCheckpointArtifacts(t *testing.T) {
	cfg := smallConfig()
	cfg.CheckpointModel = true
	cfg.CheckpointDir = t.TempDir()
	cfg.EvalNumEpochs = 10

	dir := t.TempDir()
	c, _ := trainClassifier(t, cfg)
	if c.best == nil {
		t.Fatal("no checkpoint was taken")
	}
	if err := c.Persist(dir); err != nil {
		t.Fatal(err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) <= 4 {
		t.Errorf("model directory holds %d entries, want > 4: %v", len(files), files)
	}

	for _, name := range []string{weightsFile, checkpointMeta} {
		if _, err := os.Stat(filepath.Join(dir, checkpointDir, name)); err != nil {
			t.Errorf("checkpoint artifact %s missing: %v", name, err)
		}
	}
}

func TestSummaryArtifacts(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 5
	cfg.SummaryLogDir = filepath.Join(t.TempDir(), "logs")

	trainClassifier(t, cfg)

	entries, err := os.ReadDir(cfg.SummaryLogDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("summary directory holds %d files, want 2: %v", len(entries), names)
	}
}

func TestBatchLevelSummary(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 2
	cfg.SummaryLogLevel = SummaryBatch
	cfg.SummaryLogDir = filepath.Join(t.TempDir(), "logs")

	trainClassifier(t, cfg)

	entries, err := os.ReadDir(cfg.SummaryLogDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("summary directory holds %d files, want 2", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(cfg.SummaryLogDir, "train.scalars.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	batches := 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec scalarRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("malformed scalar record %q: %v", line, err)
		}
		if rec.Tag == "train.batch_loss" {
			batches++
		}
	}
	if batches == 0 {
		t.Error("no per-batch scalars were written at batch granularity")
	}
}

func TestValidationHoldout(t *testing.T) {
	cfg := smallConfig()
	cfg.Epochs = 5
	cfg.EvalNumExamples = 2
	cfg.EvalNumEpochs = 1

	// training must succeed with a held-out validation split
	trainClassifier(t, cfg)
}
