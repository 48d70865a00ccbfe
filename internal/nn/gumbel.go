package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// GumbelSoftmax draws a relaxed one-hot sample from a categorical
// distribution parameterized by logits. In soft mode the sample is the
// temperature-scaled softmax of perturbed logits and is differentiable.
// In hard mode the forward value is the discretized argmax one-hot while
// the gradient still flows through the soft relaxation.
func GumbelSoftmax(rng *rand.Rand, logits []*Value, tau float64, hard bool) ([]*Value, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("gumbel-softmax requires at least one logit")
	}
	if tau <= 0 {
		return nil, fmt.Errorf("gumbel-softmax temperature must be > 0, got %g", tau)
	}

	perturbed := make([]*Value, len(logits))
	for i, l := range logits {
		perturbed[i] = Scale(Shift(l, sampleGumbel(rng)), 1/tau)
	}
	soft := Softmax(perturbed)
	if !hard {
		return soft, nil
	}

	argmax := 0
	for i, s := range soft {
		if s.Data > soft[argmax].Data {
			argmax = i
		}
	}
	out := make([]*Value, len(soft))
	for i, s := range soft {
		hardVal := 0.0
		if i == argmax {
			hardVal = 1
		}
		out[i] = StraightThrough(s, hardVal)
	}
	return out, nil
}

func sampleGumbel(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(-math.Log(u))
}
