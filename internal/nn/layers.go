package nn

import (
	"math"
	"math/rand"
)

// Linear is a fully connected layer y = Wx + b.
type Linear struct {
	W [][]*Value
	B []*Value
}

func NewLinear(rng *rand.Rand, in, out int) *Linear {
	std := 1 / math.Sqrt(float64(in))
	w := make([][]*Value, out)
	for o := range w {
		row := make([]*Value, in)
		for i := range row {
			row[i] = V(rng.NormFloat64() * std)
		}
		w[o] = row
	}
	b := make([]*Value, out)
	for o := range b {
		b[o] = V(0)
	}
	return &Linear{W: w, B: b}
}

func (l *Linear) Forward(x []*Value) []*Value {
	out := make([]*Value, len(l.W))
	for o, row := range l.W {
		s := l.B[o]
		for i := range x {
			s = Add(s, Mul(row[i], x[i]))
		}
		out[o] = s
	}
	return out
}

func (l *Linear) Parameters() []*Value {
	params := make([]*Value, 0, len(l.W)*len(l.W[0])+len(l.B))
	for _, row := range l.W {
		params = append(params, row...)
	}
	params = append(params, l.B...)
	return params
}

// MLP is a two-layer perceptron with tanh activation and inverted dropout
// on the hidden layer. Dropout is active only while training is set.
type MLP struct {
	hidden  *Linear
	out     *Linear
	dropout float64

	rng      *rand.Rand
	training bool
}

func NewMLP(rng *rand.Rand, in, hid, out int, dropout float64) *MLP {
	return &MLP{
		hidden:  NewLinear(rng, in, hid),
		out:     NewLinear(rng, hid, out),
		dropout: dropout,
		rng:     rng,
	}
}

func (m *MLP) SetTraining(training bool) {
	m.training = training
}

func (m *MLP) Forward(x []*Value) []*Value {
	h := m.hidden.Forward(x)
	for i := range h {
		h[i] = Tanh(h[i])
	}
	if m.training && m.dropout > 0 {
		keep := 1 - m.dropout
		for i := range h {
			if m.rng.Float64() < m.dropout {
				h[i] = Scale(h[i], 0)
			} else {
				h[i] = Scale(h[i], 1/keep)
			}
		}
	}
	return m.out.Forward(h)
}

func (m *MLP) Parameters() []*Value {
	return append(m.hidden.Parameters(), m.out.Parameters()...)
}

// Concat appends value slices into a fresh slice.
func Concat(parts ...[]*Value) []*Value {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]*Value, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Constants lifts a float64 slice into constant graph nodes.
func Constants(xs []float64) []*Value {
	out := make([]*Value, len(xs))
	for i, x := range xs {
		out[i] = V(x)
	}
	return out
}
