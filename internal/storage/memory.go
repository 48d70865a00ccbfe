package storage

import (
	"context"
	"sync"

	"fnri/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	states      map[string]model.ComponentState
	bestStates  map[string]model.ComponentState
	metrics     map[string][]model.MetricPoint
	summaries   map[string]model.RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.states = make(map[string]model.ComponentState)
	s.bestStates = make(map[string]model.ComponentState)
	s.metrics = make(map[string][]model.MetricPoint)
	s.summaries = make(map[string]model.RunSummary)
	return nil
}

func (s *MemoryStore) SaveComponentState(_ context.Context, runID string, state model.ComponentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[stateKey(runID, state.Component)] = copyState(state)
	return nil
}

func (s *MemoryStore) GetComponentState(_ context.Context, runID, component string) (model.ComponentState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stateKey(runID, component)]
	if !ok {
		return model.ComponentState{}, false, nil
	}
	return copyState(state), true, nil
}

func (s *MemoryStore) SaveBestState(_ context.Context, runID string, state model.ComponentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bestStates[stateKey(runID, state.Component)] = copyState(state)
	return nil
}

func (s *MemoryStore) GetBestState(_ context.Context, runID, component string) (model.ComponentState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.bestStates[stateKey(runID, component)]
	if !ok {
		return model.ComponentState{}, false, nil
	}
	return copyState(state), true, nil
}

func (s *MemoryStore) SaveMetricPoints(_ context.Context, runID string, points []model.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics[runID] = append(s.metrics[runID], points...)
	return nil
}

func (s *MemoryStore) GetMetricSeries(_ context.Context, runID, prefix, name string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, ok := s.metrics[runID]
	if !ok {
		return nil, false, nil
	}
	var series []float64
	for _, point := range points {
		if point.Prefix == prefix && point.Name == name {
			series = append(series, point.Value)
		}
	}
	if series == nil {
		return nil, false, nil
	}
	return series, true, nil
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	return summary, ok, nil
}

func stateKey(runID, component string) string {
	return runID + "/" + component
}

func copyState(state model.ComponentState) model.ComponentState {
	state.Params = append([]float64(nil), state.Params...)
	return state
}
