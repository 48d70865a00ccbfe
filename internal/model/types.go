package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ComponentState is the flattened parameter vector of one trainable component
// (encoder or decoder) at a given epoch.
type ComponentState struct {
	VersionedRecord
	Component string    `json:"component"`
	Epoch     int       `json:"epoch"`
	Params    []float64 `json:"params"`
}

// MetricPoint is one recorded scalar: the mean of a per-batch metric series
// over a single pass, tagged with the pass prefix (train/val/test).
type MetricPoint struct {
	Epoch  int     `json:"epoch"`
	Prefix string  `json:"prefix"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

// RunSummary is written once a run finishes, whether it ran to the epoch
// limit or stopped early.
type RunSummary struct {
	VersionedRecord
	RunID        string  `json:"run_id"`
	EpochsRun    int     `json:"epochs_run"`
	BestValLoss  float64 `json:"best_val_loss"`
	StoppedEarly bool    `json:"stopped_early"`
}
