package data

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTraj(samples, atoms, timesteps, dims int) [][][][]float64 {
	out := make([][][][]float64, samples)
	v := 0.0
	for s := range out {
		out[s] = make([][][]float64, atoms)
		for i := range out[s] {
			out[s][i] = make([][]float64, timesteps)
			for t := range out[s][i] {
				frame := make([]float64, dims)
				for d := range frame {
					frame[d] = v
					v++
				}
				out[s][i][t] = frame
			}
		}
	}
	return out
}

func TestSliceLoaderBatchesInOrder(t *testing.T) {
	traj := makeTraj(5, 2, 2, 1)
	loader, err := NewSliceLoader(2, traj, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, loader.Samples())

	var sizes []int
	var first []float64
	for {
		batch, ok := loader.Next()
		if !ok {
			break
		}
		sizes = append(sizes, batch.Size())
		first = append(first, batch.Traj[0][0][0][0])
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	// sample order is preserved across batches
	assert.Equal(t, []float64{0, 8, 16}, first)

	// restartable
	loader.Reset()
	batch, ok := loader.Next()
	require.True(t, ok)
	assert.Equal(t, 0.0, batch.Traj[0][0][0][0])
}

func TestSliceLoaderPairsConditioning(t *testing.T) {
	traj := makeTraj(3, 2, 2, 1)
	cond := [][]float64{{1}, {2}, {3}}
	loader, err := NewSliceLoader(2, traj, cond)
	require.NoError(t, err)

	batch, ok := loader.Next()
	require.True(t, ok)
	require.Len(t, batch.Cond, batch.Size())
	assert.Equal(t, []float64{1}, batch.Cond[0])
}

func TestSliceLoaderValidation(t *testing.T) {
	traj := makeTraj(2, 2, 2, 1)

	_, err := NewSliceLoader(0, traj, nil)
	assert.Error(t, err)

	_, err = NewSliceLoader(1, nil, nil)
	assert.Error(t, err)

	_, err = NewSliceLoader(1, traj, [][]float64{{1}})
	assert.Error(t, err)
}

func writeTrajCSV(t *testing.T, path string, atoms, timesteps, dims int, samples [][]float64) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "%d,%d,%d\n", atoms, timesteps, dims)
	for _, row := range samples {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprintf("%g", v)
		}
		b.WriteString(strings.Join(parts, ","))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestLoadCSVReadsFlattenedSamples(t *testing.T) {
	dir := t.TempDir()
	// 2 atoms, 2 timesteps, 1 dim: 4 values per sample
	writeTrajCSV(t, filepath.Join(dir, "traj_train_springs.csv"), 2, 2, 1, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	})

	loader, err := LoadCSV(dir, "train", "springs", 2, 0)
	require.NoError(t, err)
	require.Equal(t, 2, loader.Samples())

	batch, ok := loader.Next()
	require.True(t, ok)
	require.Equal(t, 2, batch.Size())
	assert.Equal(t, 1.0, batch.Traj[0][0][0][0])
	assert.Equal(t, 2.0, batch.Traj[0][0][1][0])
	assert.Equal(t, 3.0, batch.Traj[0][1][0][0])
	assert.Equal(t, 8.0, batch.Traj[1][1][1][0])
}

func TestLoadCSVRejectsRowWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTrajCSV(t, filepath.Join(dir, "traj_train_springs.csv"), 2, 2, 1, [][]float64{
		{1, 2, 3},
	})

	_, err := LoadCSV(dir, "train", "springs", 1, 0)
	assert.Error(t, err)
}

func TestLoadCSVWithConditioning(t *testing.T) {
	dir := t.TempDir()
	writeTrajCSV(t, filepath.Join(dir, "traj_valid_run.csv"), 2, 2, 1, [][]float64{
		{1, 2, 3, 4},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cond_valid_run.csv"), []byte("0.5,1.5\n"), 0o644))

	loader, err := LoadCSV(dir, "valid", "run", 1, 2)
	require.NoError(t, err)

	batch, ok := loader.Next()
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 1.5}, batch.Cond[0])
}

func TestLoadCSVConditioningCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTrajCSV(t, filepath.Join(dir, "traj_test_run.csv"), 2, 2, 1, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cond_test_run.csv"), []byte("0.5\n"), 0o644))

	_, err := LoadCSV(dir, "test", "run", 1, 1)
	assert.Error(t, err)
}

func TestFirstFrameStats(t *testing.T) {
	// first frames across atoms: [0], [2], [4], [6], [8], [10]
	traj := makeTraj(3, 2, 2, 1)
	loader, err := NewSliceLoader(2, traj, nil)
	require.NoError(t, err)

	mean, std, err := FirstFrameStats(loader)
	require.NoError(t, err)
	require.Len(t, mean, 1)
	assert.InDelta(t, 5.0, mean[0], 1e-12)
	assert.Greater(t, std[0], 0.0)
}
