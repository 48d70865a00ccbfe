package nn

import "math"

// Value is one node in a scalar reverse-mode autodiff graph. Operations
// record their inputs and local derivatives; Backward walks the graph in
// reverse topological order and accumulates gradients.
type Value struct {
	Data float64
	Grad float64

	children   []*Value
	localGrads []float64
}

func V(x float64) *Value {
	return &Value{Data: x}
}

func Add(a, b *Value) *Value {
	return &Value{Data: a.Data + b.Data, children: []*Value{a, b}, localGrads: []float64{1, 1}}
}

func Sub(a, b *Value) *Value {
	return &Value{Data: a.Data - b.Data, children: []*Value{a, b}, localGrads: []float64{1, -1}}
}

func Mul(a, b *Value) *Value {
	return &Value{Data: a.Data * b.Data, children: []*Value{a, b}, localGrads: []float64{b.Data, a.Data}}
}

func Div(a, b *Value) *Value {
	return &Value{Data: a.Data / b.Data, children: []*Value{a, b}, localGrads: []float64{1 / b.Data, -a.Data / (b.Data * b.Data)}}
}

func Neg(a *Value) *Value {
	return &Value{Data: -a.Data, children: []*Value{a}, localGrads: []float64{-1}}
}

func Scale(a *Value, c float64) *Value {
	return &Value{Data: a.Data * c, children: []*Value{a}, localGrads: []float64{c}}
}

func Shift(a *Value, c float64) *Value {
	return &Value{Data: a.Data + c, children: []*Value{a}, localGrads: []float64{1}}
}

func Square(a *Value) *Value {
	return &Value{Data: a.Data * a.Data, children: []*Value{a}, localGrads: []float64{2 * a.Data}}
}

func Log(a *Value) *Value {
	return &Value{Data: math.Log(a.Data), children: []*Value{a}, localGrads: []float64{1 / a.Data}}
}

func Exp(a *Value) *Value {
	e := math.Exp(a.Data)
	return &Value{Data: e, children: []*Value{a}, localGrads: []float64{e}}
}

func Tanh(a *Value) *Value {
	th := math.Tanh(a.Data)
	return &Value{Data: th, children: []*Value{a}, localGrads: []float64{1 - th*th}}
}

func Sigmoid(a *Value) *Value {
	s := 1 / (1 + math.Exp(-a.Data))
	return &Value{Data: s, children: []*Value{a}, localGrads: []float64{s * (1 - s)}}
}

func ReLU(a *Value) *Value {
	if a.Data > 0 {
		return &Value{Data: a.Data, children: []*Value{a}, localGrads: []float64{1}}
	}
	return &Value{Data: 0, children: []*Value{a}, localGrads: []float64{0}}
}

// StraightThrough forwards the given hard value while routing the gradient
// unchanged to the soft input it replaces.
func StraightThrough(soft *Value, hard float64) *Value {
	return &Value{Data: hard, children: []*Value{soft}, localGrads: []float64{1}}
}

// Sum folds a slice of values into one node.
func Sum(values []*Value) *Value {
	out := V(0)
	for _, v := range values {
		out = Add(out, v)
	}
	return out
}

// Backward seeds out.Grad = 1 and accumulates gradients into every node
// reachable from out. Gradients of reused nodes add up, so callers zero
// parameter gradients between steps.
func Backward(out *Value) {
	var topo []*Value
	visited := map[*Value]bool{}
	var build func(v *Value)
	build = func(v *Value) {
		if visited[v] {
			return
		}
		visited[v] = true
		for _, ch := range v.children {
			build(ch)
		}
		topo = append(topo, v)
	}
	build(out)

	out.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		for j, ch := range v.children {
			ch.Grad += v.localGrads[j] * v.Grad
		}
	}
}

// Softmax returns the softmax of logits with max subtraction for stability.
func Softmax(logits []*Value) []*Value {
	maxVal := logits[0].Data
	for _, l := range logits[1:] {
		if l.Data > maxVal {
			maxVal = l.Data
		}
	}
	exps := make([]*Value, len(logits))
	total := V(0)
	for i, l := range logits {
		e := Exp(Shift(l, -maxVal))
		exps[i] = e
		total = Add(total, e)
	}
	probs := make([]*Value, len(logits))
	for i := range exps {
		probs[i] = Div(exps[i], total)
	}
	return probs
}
