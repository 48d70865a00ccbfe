// Package objective composes the fNRI training loss: a Gaussian
// reconstruction term, per-factor KL divergences against a uniform or
// configured prior, and the diagnostic inter-block KL that detects factors
// collapsing onto the same structure.
package objective

import (
	"fmt"
	"math"

	"fnri/internal/graph"
	"fnri/internal/nn"
)

const klEps = 1e-16

// betaRelTol mirrors the reference behavior of treating beta as zero when
// it is numerically indistinguishable from it (relative tolerance 1e-6).
const betaRelTol = 1e-6

// Config selects how the scalar loss is assembled.
type Config struct {
	Variance float64
	Beta     float64
	UseMSE   bool
	Atoms    int
}

// Result carries the optimized loss node plus every diagnostic scalar the
// epoch runner records.
type Result struct {
	Loss *nn.Value

	NLL       float64
	MSE       float64
	KL        float64
	KLFactors []float64
	KLBlocks  []float64
}

// Compose builds the loss for one batch. pred and target have shape
// [batch][atoms][timesteps][dims]; probs has shape [batch][pairs][total
// edge types] and is sliced by the partition. logPrior, when non-nil, holds
// one fixed log-probability vector per factor.
func Compose(cfg Config, partition graph.Partition, pred [][][][]*nn.Value, target [][][][]float64, probs [][][]*nn.Value, logPrior [][]float64) (Result, error) {
	if cfg.Variance <= 0 {
		return Result{}, fmt.Errorf("output variance must be > 0, got %g", cfg.Variance)
	}
	if cfg.Atoms < 1 {
		return Result{}, fmt.Errorf("atom count must be >= 1, got %d", cfg.Atoms)
	}
	if len(pred) == 0 || len(pred) != len(target) {
		return Result{}, fmt.Errorf("pred batch %d does not match target batch %d", len(pred), len(target))
	}
	if len(probs) != len(pred) {
		return Result{}, fmt.Errorf("probs batch %d does not match pred batch %d", len(probs), len(pred))
	}
	for b := range probs {
		for p := range probs[b] {
			if len(probs[b][p]) != partition.Total() {
				return Result{}, fmt.Errorf("probs last dimension %d does not match partition total %d", len(probs[b][p]), partition.Total())
			}
		}
	}
	if logPrior != nil {
		if len(logPrior) != partition.Factors() {
			return Result{}, fmt.Errorf("log-prior has %d factors, partition has %d", len(logPrior), partition.Factors())
		}
		for k := range logPrior {
			if len(logPrior[k]) != partition.Size(k) {
				return Result{}, fmt.Errorf("log-prior factor %d has %d entries, partition size is %d", k, len(logPrior[k]), partition.Size(k))
			}
		}
	}

	nll := nllGaussian(pred, target, cfg.Variance, cfg.Atoms)
	mse := mseLoss(pred, target)

	factors := partition.Factors()
	klFactors := make([]*nn.Value, factors)
	for k := 0; k < factors; k++ {
		if logPrior != nil {
			klFactors[k] = klCategorical(probs, partition, k, logPrior[k], cfg.Atoms)
		} else {
			klFactors[k] = klCategoricalUniform(probs, partition, k, cfg.Atoms)
		}
	}
	kl := nn.Sum(klFactors)

	res := Result{
		NLL:       nll.Data,
		MSE:       mse.Data,
		KLFactors: make([]float64, factors),
		KLBlocks:  klBetweenBlocks(probs, partition, cfg.Atoms),
	}
	for k, v := range klFactors {
		res.KLFactors[k] = v.Data
	}

	// Beta scaling is skipped entirely when beta is indistinguishable from
	// zero, in which case KL contributes nothing to the optimized loss.
	scaledKL := nn.V(0)
	if !floatClose(cfg.Beta, 0, betaRelTol) {
		scaledKL = nn.Scale(kl, cfg.Beta)
	}
	res.KL = scaledKL.Data

	if cfg.UseMSE {
		res.Loss = mse
	} else {
		res.Loss = nn.Add(nll, scaledKL)
	}
	return res, nil
}

// nllGaussian is the fixed-variance Gaussian negative log likelihood,
// summed over elements and normalized by batch and atom count. The constant
// 0.5*log(2*pi*var) term is omitted; it does not affect optimization.
func nllGaussian(pred [][][][]*nn.Value, target [][][][]float64, variance float64, atoms int) *nn.Value {
	total := nn.V(0)
	for b := range pred {
		for i := range pred[b] {
			for t := range pred[b][i] {
				for d := range pred[b][i][t] {
					diff := nn.Shift(pred[b][i][t][d], -target[b][i][t][d])
					total = nn.Add(total, nn.Square(diff))
				}
			}
		}
	}
	return nn.Scale(total, 1/(2*variance*float64(len(pred)*atoms)))
}

func mseLoss(pred [][][][]*nn.Value, target [][][][]float64) *nn.Value {
	total := nn.V(0)
	count := 0
	for b := range pred {
		for i := range pred[b] {
			for t := range pred[b][i] {
				for d := range pred[b][i][t] {
					diff := nn.Shift(pred[b][i][t][d], -target[b][i][t][d])
					total = nn.Add(total, nn.Square(diff))
					count++
				}
			}
		}
	}
	return nn.Scale(total, 1/float64(count))
}

// klCategorical is KL(posterior || prior) for factor k, summed over batch
// and pairs and normalized by batch and atom count.
func klCategorical(probs [][][]*nn.Value, partition graph.Partition, k int, logPrior []float64, atoms int) *nn.Value {
	offset := partition.Offset(k)
	size := partition.Size(k)
	total := nn.V(0)
	for b := range probs {
		for p := range probs[b] {
			for c := 0; c < size; c++ {
				prob := probs[b][p][offset+c]
				term := nn.Mul(prob, nn.Shift(nn.Log(nn.Shift(prob, klEps)), -logPrior[c]))
				total = nn.Add(total, term)
			}
		}
	}
	return nn.Scale(total, 1/float64(len(probs)*atoms))
}

// klCategoricalUniform is KL(posterior || uniform) for factor k. The
// log(size) constant is included per distribution so the term is zero at
// exact uniformity and non-negative otherwise.
func klCategoricalUniform(probs [][][]*nn.Value, partition graph.Partition, k int, atoms int) *nn.Value {
	offset := partition.Offset(k)
	size := partition.Size(k)
	logSize := math.Log(float64(size))
	total := nn.V(0)
	for b := range probs {
		for p := range probs[b] {
			entropy := nn.V(0)
			for c := 0; c < size; c++ {
				prob := probs[b][p][offset+c]
				entropy = nn.Add(entropy, nn.Mul(prob, nn.Log(nn.Shift(prob, klEps))))
			}
			total = nn.Add(total, nn.Shift(entropy, logSize))
		}
	}
	return nn.Scale(total, 1/float64(len(probs)*atoms))
}

// klBetweenBlocks reports KL(P_i || P_j) for every unordered pair of
// distinct factors with matching category counts. It is a diagnostic only
// and never feeds the optimized loss, so it is computed on plain floats.
// Factor pairs of different sizes have no comparable support and are
// skipped.
func klBetweenBlocks(probs [][][]*nn.Value, partition graph.Partition, atoms int) []float64 {
	var out []float64
	factors := partition.Factors()
	for i := 0; i < factors; i++ {
		for j := i + 1; j < factors; j++ {
			if partition.Size(i) != partition.Size(j) {
				continue
			}
			offI, offJ := partition.Offset(i), partition.Offset(j)
			size := partition.Size(i)
			total := 0.0
			for b := range probs {
				for p := range probs[b] {
					for c := 0; c < size; c++ {
						pi := probs[b][p][offI+c].Data
						pj := probs[b][p][offJ+c].Data
						total += pi * (math.Log(pi+klEps) - math.Log(pj+klEps))
					}
				}
			}
			out = append(out, total/float64(len(probs)*atoms))
		}
	}
	return out
}

func floatClose(a, b, relTol float64) bool {
	return math.Abs(a-b) <= relTol*math.Abs(b)+1e-8*math.Max(1, math.Abs(a))
}
