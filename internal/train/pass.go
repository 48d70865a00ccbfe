package train

import (
	"fmt"
	"math/rand"

	"fnri/internal/data"
	"fnri/internal/graph"
	"fnri/internal/nn"
	"fnri/internal/objective"
)

// PassKind distinguishes the three behaviors of a dataset pass.
type PassKind int

const (
	// PassTrain optimizes: backward, clip, step per batch.
	PassTrain PassKind = iota
	// PassEvaluate runs the model forward and records metrics only.
	PassEvaluate
	// PassAggregate accumulates the empirical edge-type posterior instead
	// of optimizing.
	PassAggregate
)

// Pass tags one dataset pass with its kind and metric prefix.
type Pass struct {
	Kind  PassKind
	Split string
}

func TrainPass() Pass {
	return Pass{Kind: PassTrain, Split: "train"}
}

func EvaluatePass(split string) Pass {
	return Pass{Kind: PassEvaluate, Split: split}
}

func AggregatePass() Pass {
	return Pass{Kind: PassAggregate, Split: "post"}
}

// gradClipNorm is the fixed ceiling on the combined encoder+decoder
// gradient norm.
const gradClipNorm = 1.0

// PassDeps wires one pass to its collaborators.
type PassDeps struct {
	Loader      data.Loader
	Encoder     *nn.MLPEncoder
	Decoder     *nn.RNNDecoder
	Optimizer   *nn.Adam
	Geometry    *graph.Geometry
	Partition   graph.Partition
	LogPrior    [][]float64
	Temperature float64
	Hard        bool
	Objective   objective.Config
	Conditional bool
	Rng         *rand.Rand
}

// RunPass drives one pass over the loader. It returns the metrics history
// for train/evaluate passes, or the normalized aggregated posterior of
// shape [pairs][total edge types] for aggregate passes. Numerical failures
// in the objective propagate unmodified.
func RunPass(pass Pass, deps PassDeps) (*History, [][]float64, error) {
	if deps.Loader == nil || deps.Encoder == nil || deps.Decoder == nil || deps.Geometry == nil {
		return nil, nil, fmt.Errorf("pass requires loader, encoder, decoder and geometry")
	}
	if pass.Kind == PassTrain && deps.Optimizer == nil {
		return nil, nil, fmt.Errorf("train pass requires an optimizer")
	}

	training := pass.Kind == PassTrain
	deps.Encoder.SetTraining(training)
	deps.Decoder.SetTraining(training)

	history := NewHistory()
	pairs := deps.Geometry.Pairs()
	total := deps.Partition.Total()

	var posterior [][]float64
	samplesSeen := 0
	if pass.Kind == PassAggregate {
		posterior = make([][]float64, pairs)
		for p := range posterior {
			posterior[p] = make([]float64, total)
		}
	}

	deps.Loader.Reset()
	for {
		batch, ok := deps.Loader.Next()
		if !ok {
			break
		}
		if deps.Conditional && batch.Cond == nil {
			return nil, nil, fmt.Errorf("conditional run but batch has no conditioning features")
		}

		if training {
			deps.Optimizer.ZeroGrad()
		}

		batchSize := batch.Size()
		pred := make([][][][]*nn.Value, batchSize)
		probs := make([][][]*nn.Value, batchSize)
		edges := make([][][]*nn.Value, batchSize)

		for b := 0; b < batchSize; b++ {
			logits, err := deps.Encoder.Forward(batch.Traj[b], deps.Geometry)
			if err != nil {
				return nil, nil, err
			}

			sampleEdges := make([][]*nn.Value, pairs)
			sampleProbs := make([][]*nn.Value, pairs)
			for p := 0; p < pairs; p++ {
				edgeRow := make([]*nn.Value, 0, total)
				probRow := make([]*nn.Value, 0, total)
				for k := 0; k < deps.Partition.Factors(); k++ {
					off := deps.Partition.Offset(k)
					size := deps.Partition.Size(k)
					factorLogits := logits[p][off : off+size]
					sampled, err := nn.GumbelSoftmax(deps.Rng, factorLogits, deps.Temperature, deps.Hard)
					if err != nil {
						return nil, nil, err
					}
					edgeRow = append(edgeRow, sampled...)
					probRow = append(probRow, nn.Softmax(factorLogits)...)
				}
				sampleEdges[p] = edgeRow
				sampleProbs[p] = probRow
			}
			edges[b] = sampleEdges
			probs[b] = sampleProbs

			var cond []float64
			if batch.Cond != nil {
				cond = batch.Cond[b]
			}
			out, err := deps.Decoder.Forward(batch.Traj[b], sampleEdges, deps.Geometry, cond)
			if err != nil {
				return nil, nil, err
			}
			pred[b] = out
		}

		res, err := objective.Compose(deps.Objective, deps.Partition, pred, batch.Traj, probs, deps.LogPrior)
		if err != nil {
			return nil, nil, err
		}

		if training {
			nn.Backward(res.Loss)
			combined := append(deps.Encoder.Parameters(), deps.Decoder.Parameters()...)
			nn.ClipGradNorm(combined, gradClipNorm)
			deps.Optimizer.Step()
		}

		if pass.Kind == PassAggregate {
			for p := 0; p < pairs; p++ {
				for k := 0; k < total; k++ {
					for b := 0; b < batchSize; b++ {
						posterior[p][k] += edges[b][p][k].Data
					}
				}
			}
			samplesSeen += batchSize
		}

		history.Record("loss", res.Loss.Data)
		history.Record("mse", res.MSE)
		history.Record("nll", res.NLL)
		history.Record("kl", res.KL)
		for k, v := range res.KLFactors {
			history.Record(fmt.Sprintf("kl_%d", k), v)
		}
		klbSum := 0.0
		for _, v := range res.KLBlocks {
			klbSum += v
		}
		history.Record("klb", klbSum)
		history.RecordBlocks(res.KLBlocks)
	}

	if pass.Kind == PassAggregate {
		if samplesSeen == 0 {
			return nil, nil, fmt.Errorf("aggregate pass saw no samples")
		}
		for p := range posterior {
			for k := range posterior[p] {
				posterior[p][k] /= float64(samplesSeen)
			}
		}
		return nil, posterior, nil
	}
	return history, nil, nil
}
