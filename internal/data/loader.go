// Package data provides the trajectory batch loaders feeding the training,
// validation and test passes.
package data

import "fmt"

// Batch is one slice of trajectory samples. Traj has shape
// [batch][atoms][timesteps][dims]; Cond is nil for unconditional runs,
// otherwise one auxiliary vector per sample.
type Batch struct {
	Traj [][][][]float64
	Cond [][]float64
}

func (b Batch) Size() int {
	return len(b.Traj)
}

// Loader yields an ordered, finite, restartable sequence of batches.
type Loader interface {
	Reset()
	Next() (Batch, bool)
	Samples() int
}

// SliceLoader serves pre-built batches from memory in a fixed order.
type SliceLoader struct {
	batches []Batch
	samples int
	pos     int
}

// NewSliceLoader partitions samples into batches of batchSize, preserving
// sample order. cond may be nil; when present it must pair 1:1 with traj.
func NewSliceLoader(batchSize int, traj [][][][]float64, cond [][]float64) (*SliceLoader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	if len(traj) == 0 {
		return nil, fmt.Errorf("loader requires at least one sample")
	}
	if cond != nil && len(cond) != len(traj) {
		return nil, fmt.Errorf("conditioning count %d does not match trajectory count %d", len(cond), len(traj))
	}

	l := &SliceLoader{samples: len(traj)}
	for start := 0; start < len(traj); start += batchSize {
		end := start + batchSize
		if end > len(traj) {
			end = len(traj)
		}
		batch := Batch{Traj: traj[start:end]}
		if cond != nil {
			batch.Cond = cond[start:end]
		}
		l.batches = append(l.batches, batch)
	}
	return l, nil
}

func (l *SliceLoader) Reset() {
	l.pos = 0
}

func (l *SliceLoader) Next() (Batch, bool) {
	if l.pos >= len(l.batches) {
		return Batch{}, false
	}
	b := l.batches[l.pos]
	l.pos++
	return b, true
}

func (l *SliceLoader) Samples() int {
	return l.samples
}
