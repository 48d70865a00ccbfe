package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fnri/internal/graph"
)

func randomSample(rng *rand.Rand, atoms, timesteps, dims int) [][][]float64 {
	sample := make([][][]float64, atoms)
	for i := range sample {
		sample[i] = make([][]float64, timesteps)
		for t := range sample[i] {
			frame := make([]float64, dims)
			for d := range frame {
				frame[d] = rng.NormFloat64()
			}
			sample[i][t] = frame
		}
	}
	return sample
}

func TestEncoderForwardShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	geom, err := graph.NewGeometry(4)
	require.NoError(t, err)
	partition, err := graph.NewPartition([]int{3, 2})
	require.NoError(t, err)

	enc, err := NewMLPEncoder(rng, EncoderConfig{Timesteps: 5, Dims: 2, Hidden: 8}, partition)
	require.NoError(t, err)

	logits, err := enc.Forward(randomSample(rng, 4, 5, 2), geom)
	require.NoError(t, err)
	require.Len(t, logits, geom.Pairs())
	for _, row := range logits {
		assert.Len(t, row, partition.Total())
	}
}

func TestEncoderSplitPointControlsTrunkSharing(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	partition, err := graph.NewPartition([]int{2, 2})
	require.NoError(t, err)

	counts := make([]int, 3)
	for sp := 0; sp <= 2; sp++ {
		enc, err := NewMLPEncoder(rng, EncoderConfig{Timesteps: 3, Dims: 2, Hidden: 4, SplitPoint: sp}, partition)
		require.NoError(t, err)
		counts[sp] = len(enc.Parameters())
	}

	// sharing a trunk stage removes one per-factor copy of its weights
	assert.Greater(t, counts[0], counts[1])
	assert.Greater(t, counts[1], counts[2])
}

func TestEncoderRejectsBadConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	partition, err := graph.NewPartition([]int{2})
	require.NoError(t, err)

	_, err = NewMLPEncoder(rng, EncoderConfig{Timesteps: 0, Dims: 2, Hidden: 4}, partition)
	assert.Error(t, err)

	_, err = NewMLPEncoder(rng, EncoderConfig{Timesteps: 3, Dims: 2, Hidden: 0}, partition)
	assert.Error(t, err)

	_, err = NewMLPEncoder(rng, EncoderConfig{Timesteps: 3, Dims: 2, Hidden: 4, SplitPoint: 3}, partition)
	assert.Error(t, err)
}

func TestEncoderRejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	geom, err := graph.NewGeometry(3)
	require.NoError(t, err)
	partition, err := graph.NewPartition([]int{2})
	require.NoError(t, err)

	enc, err := NewMLPEncoder(rng, EncoderConfig{Timesteps: 4, Dims: 2, Hidden: 4}, partition)
	require.NoError(t, err)

	_, err = enc.Forward(randomSample(rng, 2, 4, 2), geom)
	assert.Error(t, err, "wrong atom count")

	_, err = enc.Forward(randomSample(rng, 3, 3, 2), geom)
	assert.Error(t, err, "wrong timestep count")

	_, err = enc.Forward(randomSample(rng, 3, 4, 1), geom)
	assert.Error(t, err, "wrong dim count")
}
