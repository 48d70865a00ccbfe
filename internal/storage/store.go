package storage

import (
	"context"

	"fnri/internal/model"
)

// Store defines persistence operations for checkpoints and metric scalars.
// Best states are kept separately from per-epoch states so the orchestrator
// can restore the best-validation model after training.
type Store interface {
	Init(ctx context.Context) error
	SaveComponentState(ctx context.Context, runID string, state model.ComponentState) error
	GetComponentState(ctx context.Context, runID, component string) (model.ComponentState, bool, error)
	SaveBestState(ctx context.Context, runID string, state model.ComponentState) error
	GetBestState(ctx context.Context, runID, component string) (model.ComponentState, bool, error)
	SaveMetricPoints(ctx context.Context, runID string, points []model.MetricPoint) error
	GetMetricSeries(ctx context.Context, runID, prefix, name string) ([]float64, bool, error)
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
}
