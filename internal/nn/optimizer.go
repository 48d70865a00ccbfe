package nn

import (
	"fmt"
	"math"
)

// Adam implements the Adam update rule over a fixed parameter set.
type Adam struct {
	params []*Value
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64

	m []float64
	v []float64
	t int
}

func NewAdam(params []*Value, lr float64) (*Adam, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("optimizer requires at least one parameter")
	}
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %g", lr)
	}
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      make([]float64, len(params)),
		v:      make([]float64, len(params)),
	}, nil
}

func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.Grad = 0
	}
}

func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*p.Grad
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*p.Grad*p.Grad
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		p.Data -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

func (a *Adam) LR() float64 {
	return a.lr
}

func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// ClipGradNorm rescales the gradients of params so their combined L2 norm
// does not exceed maxNorm. Returns the pre-clip norm.
func ClipGradNorm(params []*Value, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		total += p.Grad * p.Grad
	}
	norm := math.Sqrt(total)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, p := range params {
			p.Grad *= scale
		}
	}
	return norm
}

// StepLR decays a base value by gamma every stepSize steps. It drives both
// the optimizer learning rate and the Gumbel temperature schedule.
type StepLR struct {
	current  float64
	stepSize int
	gamma    float64
	count    int
}

func NewStepLR(initial float64, stepSize int, gamma float64) (*StepLR, error) {
	if initial <= 0 {
		return nil, fmt.Errorf("schedule initial value must be > 0, got %g", initial)
	}
	if stepSize < 1 {
		return nil, fmt.Errorf("schedule step size must be >= 1, got %d", stepSize)
	}
	if gamma <= 0 {
		return nil, fmt.Errorf("schedule gamma must be > 0, got %g", gamma)
	}
	return &StepLR{current: initial, stepSize: stepSize, gamma: gamma}, nil
}

// Step advances the schedule by one epoch.
func (s *StepLR) Step() {
	s.count++
	if s.count%s.stepSize == 0 {
		s.current *= s.gamma
	}
}

func (s *StepLR) Value() float64 {
	return s.current
}
