package stats

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteAndReadRunConfig(t *testing.T) {
	baseDir := t.TempDir()

	record := RunConfigRecord{
		RunID:       "run-123",
		Atoms:       5,
		Dims:        4,
		Timesteps:   10,
		Partition:   []int{2, 2},
		Epochs:      50,
		BatchSize:   8,
		LR:          5e-4,
		LRDecay:     200,
		Gamma:       0.5,
		Patience:    10,
		Temperature: 0.5,
		TempDecay:   100,
		Tau:         0.5,
		Variance:    5e-5,
		Beta:        1,
		Seed:        42,
	}

	runDir, err := WriteRunConfig(baseDir, record)
	if err != nil {
		t.Fatalf("write run config: %v", err)
	}
	if runDir != filepath.Join(baseDir, "run-123") {
		t.Fatalf("unexpected run dir: %s", runDir)
	}

	loaded, ok, err := ReadRunConfig(baseDir, "run-123")
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if !ok {
		t.Fatal("expected stored run config")
	}
	if !reflect.DeepEqual(record, loaded) {
		t.Fatalf("round trip mismatch: %+v vs %+v", record, loaded)
	}
}

func TestReadRunConfigMissing(t *testing.T) {
	_, ok, err := ReadRunConfig(t.TempDir(), "no-such-run")
	if err != nil {
		t.Fatalf("read missing config: %v", err)
	}
	if ok {
		t.Fatal("expected no config for unknown run")
	}
}

func TestWriteRunConfigRequiresRunID(t *testing.T) {
	if _, err := WriteRunConfig(t.TempDir(), RunConfigRecord{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestRunIndexAppendAndReplace(t *testing.T) {
	baseDir := t.TempDir()

	first := RunIndexEntry{RunID: "run-a", Epochs: 10, EpochsRun: 10, CreatedAtUTC: "2026-08-25T10:00:00Z"}
	second := RunIndexEntry{RunID: "run-b", Epochs: 10, EpochsRun: 4, StoppedEarly: true, CreatedAtUTC: "2026-08-25T11:00:00Z"}
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := AppendRunIndex(baseDir, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-b" {
		t.Fatalf("expected newest first, got %s", entries[0].RunID)
	}

	// same run id replaces in place
	first.BestValLoss = 0.5
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("replace entry: %v", err)
	}
	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index after replace: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected replacement, got %d entries", len(entries))
	}
	for _, e := range entries {
		if e.RunID == "run-a" && e.BestValLoss != 0.5 {
			t.Fatalf("entry not replaced: %+v", e)
		}
	}
}

func TestAppendPosteriorAccumulatesLines(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	posterior := [][]float64{{0.25, 0.75}, {0.5, 0.5}}
	if err := AppendPosterior(runDir, posterior); err != nil {
		t.Fatalf("append posterior: %v", err)
	}
	if err := AppendPosterior(runDir, posterior); err != nil {
		t.Fatalf("append posterior again: %v", err)
	}

	records, ok, err := ReadPosteriorLog(runDir)
	if err != nil {
		t.Fatalf("read posterior log: %v", err)
	}
	if !ok {
		t.Fatal("expected posterior log")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 appended records, got %d", len(records))
	}
	want := []float64{0.25, 0.75, 0.5, 0.5}
	for i, record := range records {
		if !reflect.DeepEqual(record, want) {
			t.Fatalf("record %d mismatch: %v", i, record)
		}
	}
}

func TestAppendPosteriorRejectsEmpty(t *testing.T) {
	if err := AppendPosterior(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for empty posterior")
	}
}

func TestGeneratedOutputRoundTrip(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	outputs := [][][][]float64{
		{
			{{1, 2}, {3, 4}, {5, 6}},
			{{0.5, math.Pi}, {-1, 0}, {7, 8}},
		},
	}
	if err := WriteGeneratedOutput(runDir, outputs); err != nil {
		t.Fatalf("write generated output: %v", err)
	}

	loaded, ok, err := ReadGeneratedOutput(runDir)
	if err != nil {
		t.Fatalf("read generated output: %v", err)
	}
	if !ok {
		t.Fatal("expected generated output artifact")
	}
	if !reflect.DeepEqual(outputs, loaded) {
		t.Fatalf("round trip mismatch: %v vs %v", outputs, loaded)
	}
}

func TestReadGeneratedOutputMissing(t *testing.T) {
	_, ok, err := ReadGeneratedOutput(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("read missing output: %v", err)
	}
	if ok {
		t.Fatal("expected no artifact")
	}
}

func TestReadGeneratedOutputRejectsBadHeader(t *testing.T) {
	runDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(runDir, "generated_output.csv"), []byte("1,2\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := ReadGeneratedOutput(runDir); err == nil {
		t.Fatal("expected header error")
	}
}
