package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfigFile(t, `
run_id: demo
data_dir: ./data
suffix: springs
atoms: 5
dims: 4
timesteps: 49
partition: "2,2"
epochs: 20
batch_size: 8
lr: 0.0005
lr_decay: 200
gamma: 0.5
patience: 10
temperature: 0.5
temp_decay: 100
tau: 0.5
variance: 5.0e-5
beta: 1
encoder_hidden: 32
decoder_hidden: 32
seed: 11
`)

	cfg, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig: %v", err)
	}
	if cfg.RunID != "demo" || cfg.DataDir != "./data" || cfg.Partition != "2,2" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Atoms != 5 || cfg.Timesteps != 49 || cfg.Seed != 11 {
		t.Fatalf("unexpected shape fields: %+v", cfg)
	}
}

func TestLoadFileConfigErrors(t *testing.T) {
	if _, err := loadFileConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeConfigFile(t, "atoms: [not, an, int]")
	if _, err := loadFileConfig(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestTrainConfigConversion(t *testing.T) {
	cfg := fileConfig{
		Atoms:         5,
		Dims:          4,
		Timesteps:     49,
		Partition:     "3, 2",
		Epochs:        20,
		BatchSize:     8,
		LR:            5e-4,
		LRDecay:       200,
		Gamma:         0.5,
		Patience:      10,
		Temperature:   0.5,
		TempDecay:     100,
		Tau:           0.5,
		Variance:      5e-5,
		Beta:          1,
		EncoderHidden: 32,
		DecoderHidden: 32,
	}

	trainCfg, err := cfg.trainConfig()
	if err != nil {
		t.Fatalf("trainConfig: %v", err)
	}
	if !reflect.DeepEqual(trainCfg.Partition, []int{3, 2}) {
		t.Fatalf("partition = %v, want [3 2]", trainCfg.Partition)
	}
	if trainCfg.Atoms != 5 || trainCfg.LR != 5e-4 || trainCfg.Patience != 10 {
		t.Fatalf("unexpected conversion: %+v", trainCfg)
	}
}

func TestParsePartition(t *testing.T) {
	sizes, err := parsePartition("2,2,2")
	if err != nil {
		t.Fatalf("parsePartition: %v", err)
	}
	if !reflect.DeepEqual(sizes, []int{2, 2, 2}) {
		t.Fatalf("sizes = %v, want [2 2 2]", sizes)
	}

	for _, bad := range []string{"", "  ", "2,x", "2,,2"} {
		if _, err := parsePartition(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMergeFlagOverrides(t *testing.T) {
	base := fileConfig{RunID: "from-file", Atoms: 5, LR: 5e-4, Hard: false, Partition: "2,2"}
	flags := fileConfig{RunID: "from-flags", Atoms: 9, LR: 1e-3, Hard: true, Partition: "3,3"}

	mergeFlagOverrides(&base, flags, map[string]bool{"atoms": true, "hard": true})

	if base.RunID != "from-file" || base.Partition != "2,2" || base.LR != 5e-4 {
		t.Fatalf("unset flags must not override file values: %+v", base)
	}
	if base.Atoms != 9 || !base.Hard {
		t.Fatalf("set flags must override file values: %+v", base)
	}
}
