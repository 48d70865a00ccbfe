package train

import (
	"context"
	"fmt"

	"fnri/internal/model"
	"fnri/internal/storage"
)

// Checkpointable is a trainable component whose parameters can be
// flattened for persistence.
type Checkpointable interface {
	StateVector() []float64
	LoadStateVector(state []float64) error
}

// Recorder is the checkpoint/logging contract the orchestrator depends on.
// It is the sole authority on whether a validation loss is the best seen.
type Recorder interface {
	Register(name string, component Checkpointable) error
	RecordScalars(ctx context.Context, history *History, epoch int, prefix string) (*History, error)
	Store(ctx context.Context, valLoss float64) (bool, error)
	Restore(ctx context.Context, best bool) error
	Close() error
}

// StoreRecorder implements Recorder on top of a storage.Store. "Best" means
// strictly less than every previously stored validation loss; an exact tie
// is not an improvement.
type StoreRecorder struct {
	store storage.Store
	runID string

	names      []string
	components map[string]Checkpointable

	epoch    int
	bestLoss float64
	haveBest bool
}

func NewStoreRecorder(store storage.Store, runID string) (*StoreRecorder, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &StoreRecorder{
		store:      store,
		runID:      runID,
		components: make(map[string]Checkpointable),
	}, nil
}

func (r *StoreRecorder) Register(name string, component Checkpointable) error {
	if name == "" {
		return fmt.Errorf("component name is required")
	}
	if component == nil {
		return fmt.Errorf("component %s is nil", name)
	}
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component already registered: %s", name)
	}
	r.names = append(r.names, name)
	r.components[name] = component
	return nil
}

func (r *StoreRecorder) RecordScalars(ctx context.Context, history *History, epoch int, prefix string) (*History, error) {
	if history == nil {
		return nil, fmt.Errorf("history is required")
	}

	var points []model.MetricPoint
	for _, name := range history.Names() {
		mean, err := history.Mean(name)
		if err != nil {
			return nil, err
		}
		points = append(points, model.MetricPoint{Epoch: epoch, Prefix: prefix, Name: name, Value: mean})
	}
	if err := r.store.SaveMetricPoints(ctx, r.runID, points); err != nil {
		return nil, err
	}
	return history, nil
}

func (r *StoreRecorder) Store(ctx context.Context, valLoss float64) (bool, error) {
	r.epoch++
	isBest := !r.haveBest || valLoss < r.bestLoss
	if isBest {
		r.bestLoss = valLoss
		r.haveBest = true
	}

	for _, name := range r.names {
		state := model.ComponentState{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			Component: name,
			Epoch:     r.epoch,
			Params:    r.components[name].StateVector(),
		}
		if err := r.store.SaveComponentState(ctx, r.runID, state); err != nil {
			return false, err
		}
		if isBest {
			if err := r.store.SaveBestState(ctx, r.runID, state); err != nil {
				return false, err
			}
		}
	}
	return isBest, nil
}

func (r *StoreRecorder) Restore(ctx context.Context, best bool) error {
	for _, name := range r.names {
		var (
			state model.ComponentState
			ok    bool
			err   error
		)
		if best {
			state, ok, err = r.store.GetBestState(ctx, r.runID, name)
		} else {
			state, ok, err = r.store.GetComponentState(ctx, r.runID, name)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no stored state for component %s (best=%t)", name, best)
		}
		if err := r.components[name].LoadStateVector(state.Params); err != nil {
			return fmt.Errorf("restore component %s: %w", name, err)
		}
	}
	return nil
}

func (r *StoreRecorder) Close() error {
	return storage.CloseIfSupported(r.store)
}
