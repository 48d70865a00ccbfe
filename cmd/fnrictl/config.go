package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"fnri/internal/train"
)

// fileConfig mirrors the train command's flag surface so a run can be
// described once in YAML and selectively overridden on the command line.
type fileConfig struct {
	RunID        string `yaml:"run_id"`
	DataDir      string `yaml:"data_dir"`
	Suffix       string `yaml:"suffix"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	Store        string `yaml:"store"`
	DBPath       string `yaml:"db_path"`

	Atoms     int    `yaml:"atoms"`
	Dims      int    `yaml:"dims"`
	Timesteps int    `yaml:"timesteps"`
	CondDims  int    `yaml:"cond_dims"`
	Partition string `yaml:"partition"`

	SplitPoint int     `yaml:"split_point"`
	Epochs     int     `yaml:"epochs"`
	BatchSize  int     `yaml:"batch_size"`
	LR         float64 `yaml:"lr"`
	LRDecay    int     `yaml:"lr_decay"`
	Gamma      float64 `yaml:"gamma"`
	Patience   int     `yaml:"patience"`

	Temperature float64 `yaml:"temperature"`
	TempDecay   int     `yaml:"temp_decay"`
	Tau         float64 `yaml:"tau"`
	Hard        bool    `yaml:"hard"`

	Prior     bool `yaml:"prior"`
	SkipFirst bool `yaml:"skip_first"`

	CondHidden bool `yaml:"cond_hidden"`
	CondMsgs   bool `yaml:"cond_msgs"`

	Variance float64 `yaml:"variance"`
	Beta     float64 `yaml:"beta"`
	MSELoss  bool    `yaml:"mse_loss"`

	EncoderHidden  int     `yaml:"encoder_hidden"`
	DecoderHidden  int     `yaml:"decoder_hidden"`
	EncoderDropout float64 `yaml:"encoder_dropout"`
	DecoderDropout float64 `yaml:"decoder_dropout"`

	Seed   int64 `yaml:"seed"`
	Resume bool  `yaml:"resume"`
}

func loadFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("load config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// trainConfig converts the merged file/flag surface into the immutable
// training configuration. Partition parsing failures surface here, before
// any data is loaded.
func (c fileConfig) trainConfig() (train.Config, error) {
	partition, err := parsePartition(c.Partition)
	if err != nil {
		return train.Config{}, err
	}
	return train.Config{
		Atoms:          c.Atoms,
		Dims:           c.Dims,
		Timesteps:      c.Timesteps,
		CondDims:       c.CondDims,
		Partition:      partition,
		SplitPoint:     c.SplitPoint,
		Epochs:         c.Epochs,
		BatchSize:      c.BatchSize,
		LR:             c.LR,
		LRDecay:        c.LRDecay,
		Gamma:          c.Gamma,
		Patience:       c.Patience,
		Temperature:    c.Temperature,
		TempDecay:      c.TempDecay,
		Tau:            c.Tau,
		Hard:           c.Hard,
		Prior:          c.Prior,
		SkipFirst:      c.SkipFirst,
		CondHidden:     c.CondHidden,
		CondMsgs:       c.CondMsgs,
		Variance:       c.Variance,
		Beta:           c.Beta,
		MSELoss:        c.MSELoss,
		EncoderHidden:  c.EncoderHidden,
		DecoderHidden:  c.DecoderHidden,
		EncoderDropout: c.EncoderDropout,
		DecoderDropout: c.DecoderDropout,
		Seed:           c.Seed,
		Resume:         c.Resume,
	}, nil
}

// parsePartition parses a comma-separated factor size list like "2,2,2".
func parsePartition(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("edge-type partition is required, e.g. --partition 2,2")
	}
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("partition entry %q is not an integer", part)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}
