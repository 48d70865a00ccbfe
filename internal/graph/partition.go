package graph

import (
	"fmt"
	"sort"
)

// Partition is the ordered list of factor sizes describing how the full
// edge-type axis is sliced into independent categorical factors. Sizes are
// sorted descending at construction so a run's slicing is deterministic
// regardless of the order factors were configured in.
type Partition struct {
	sizes   []int
	offsets []int
	total   int
}

func NewPartition(sizes []int) (Partition, error) {
	if len(sizes) == 0 {
		return Partition{}, fmt.Errorf("edge-type partition must not be empty")
	}

	copied := append([]int(nil), sizes...)
	sort.Sort(sort.Reverse(sort.IntSlice(copied)))

	offsets := make([]int, len(copied))
	total := 0
	for i, size := range copied {
		if size < 1 {
			return Partition{}, fmt.Errorf("edge-type partition entry %d must be >= 1, got %d", i, size)
		}
		offsets[i] = total
		total += size
	}
	return Partition{sizes: copied, offsets: offsets, total: total}, nil
}

// Factors returns the number of independent categorical factors.
func (p Partition) Factors() int {
	return len(p.sizes)
}

// Size returns the category count of factor k.
func (p Partition) Size(k int) int {
	return p.sizes[k]
}

// Offset returns the start index of factor k's slice on the edge-type axis.
func (p Partition) Offset(k int) int {
	return p.offsets[k]
}

// Total returns the summed edge-type count across all factors.
func (p Partition) Total() int {
	return p.total
}

// Sizes returns a copy of the factor sizes in slicing order.
func (p Partition) Sizes() []int {
	return append([]int(nil), p.sizes...)
}
