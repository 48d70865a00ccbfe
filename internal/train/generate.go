package train

import (
	"fmt"
	"math/rand"

	"fnri/internal/nn"
)

// Generate decodes trajectories for every sample the loader yields, with
// edge assignments drawn per pair and per factor from the aggregated
// posterior. The draw is categorical, not argmax, so posterior uncertainty
// survives into the generated edges. Returns the per-batch MSE history and
// every generated trajectory in loader order.
func Generate(deps PassDeps, posterior [][]float64) (*History, [][][][]float64, error) {
	if deps.Loader == nil || deps.Decoder == nil || deps.Geometry == nil {
		return nil, nil, fmt.Errorf("generation requires loader, decoder and geometry")
	}
	pairs := deps.Geometry.Pairs()
	total := deps.Partition.Total()
	if len(posterior) != pairs {
		return nil, nil, fmt.Errorf("posterior has %d pairs, geometry has %d", len(posterior), pairs)
	}
	for p := range posterior {
		if len(posterior[p]) != total {
			return nil, nil, fmt.Errorf("posterior pair %d has %d edge types, partition total is %d", p, len(posterior[p]), total)
		}
	}

	deps.Decoder.SetTraining(false)
	history := NewHistory()
	var outputs [][][][]float64

	deps.Loader.Reset()
	for {
		batch, ok := deps.Loader.Next()
		if !ok {
			break
		}

		batchMSE := 0.0
		batchCount := 0
		for b := 0; b < batch.Size(); b++ {
			edges := make([][]*nn.Value, pairs)
			for p := 0; p < pairs; p++ {
				row := make([]*nn.Value, total)
				for k := range row {
					row[k] = nn.V(0)
				}
				for k := 0; k < deps.Partition.Factors(); k++ {
					off := deps.Partition.Offset(k)
					size := deps.Partition.Size(k)
					row[off+drawCategory(deps.Rng, posterior[p][off:off+size])] = nn.V(1)
				}
				edges[p] = row
			}

			var cond []float64
			if batch.Cond != nil {
				cond = batch.Cond[b]
			}
			pred, err := deps.Decoder.Forward(batch.Traj[b], edges, deps.Geometry, cond)
			if err != nil {
				return nil, nil, err
			}

			sample := make([][][]float64, len(pred))
			for i := range pred {
				sample[i] = make([][]float64, len(pred[i]))
				for t := range pred[i] {
					frame := make([]float64, len(pred[i][t]))
					for d := range pred[i][t] {
						frame[d] = pred[i][t][d].Data
						diff := frame[d] - batch.Traj[b][i][t][d]
						batchMSE += diff * diff
						batchCount++
					}
					sample[i][t] = frame
				}
			}
			outputs = append(outputs, sample)
		}
		history.Record("mse", batchMSE/float64(batchCount))
	}

	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("generation pass saw no samples")
	}
	return history, outputs, nil
}

// drawCategory samples one index from an unnormalized categorical slice.
// A slice with all mass on one category always returns that category.
func drawCategory(rng *rand.Rand, probs []float64) int {
	totalMass := 0.0
	for _, p := range probs {
		totalMass += p
	}
	u := rng.Float64() * totalMass
	cum := 0.0
	for c, p := range probs {
		cum += p
		if u < cum {
			return c
		}
	}
	return len(probs) - 1
}
