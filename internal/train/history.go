package train

import "fmt"

// History accumulates per-batch metric scalars for one pass. Values are
// appended in batch order, so each series reads as a timeline of the pass.
type History struct {
	order   []string
	scalars map[string][]float64
	blocks  [][]float64
}

func NewHistory() *History {
	return &History{scalars: make(map[string][]float64)}
}

// Record appends one scalar to the named series, creating it on first use.
func (h *History) Record(name string, value float64) {
	if _, ok := h.scalars[name]; !ok {
		h.order = append(h.order, name)
	}
	h.scalars[name] = append(h.scalars[name], value)
}

// RecordBlocks appends one per-block KL snapshot.
func (h *History) RecordBlocks(values []float64) {
	h.blocks = append(h.blocks, append([]float64(nil), values...))
}

// Names returns the metric names in first-recorded order.
func (h *History) Names() []string {
	return append([]string(nil), h.order...)
}

// Series returns the recorded values for name, in batch order.
func (h *History) Series(name string) []float64 {
	return append([]float64(nil), h.scalars[name]...)
}

// Blocks returns the per-batch inter-block KL snapshots.
func (h *History) Blocks() [][]float64 {
	out := make([][]float64, len(h.blocks))
	for i, b := range h.blocks {
		out[i] = append([]float64(nil), b...)
	}
	return out
}

// Mean returns the arithmetic mean of the named series.
func (h *History) Mean(name string) (float64, error) {
	series, ok := h.scalars[name]
	if !ok || len(series) == 0 {
		return 0, fmt.Errorf("no values recorded for metric %q", name)
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series)), nil
}
