package nn

import (
	"fmt"
	"math/rand"

	"fnri/internal/graph"
)

// DecoderConfig sizes the trajectory decoder.
type DecoderConfig struct {
	Atoms     int
	Timesteps int
	Dims      int
	Hidden    int
	CondDims  int
	// CondHidden appends conditioning features to the hidden state before
	// the output projection; CondMsgs appends them to every message input.
	CondHidden bool
	CondMsgs   bool
	Dropout    float64
	// SkipFirst treats the first edge type as "no edge": its message
	// function is never applied.
	SkipFirst bool
}

// RNNDecoder predicts a trajectory from the observed input and a sampled
// edge tensor. Each timestep computes per-pair messages gated by the edge
// sample, aggregates them at the receiver, updates a GRU hidden state per
// atom and emits a position delta.
type RNNDecoder struct {
	cfg       DecoderConfig
	partition graph.Partition

	inputEmb *Linear
	msg      []*MLP
	gruR     *Linear
	gruZ     *Linear
	gruN     *Linear
	out      *MLP

	mlps []*MLP
}

func NewRNNDecoder(rng *rand.Rand, cfg DecoderConfig, partition graph.Partition) (*RNNDecoder, error) {
	if cfg.Atoms < 2 {
		return nil, fmt.Errorf("decoder requires at least 2 atoms, got %d", cfg.Atoms)
	}
	if cfg.Timesteps < 2 || cfg.Dims < 1 {
		return nil, fmt.Errorf("decoder requires >= 2 timesteps and positive dims, got %d x %d", cfg.Timesteps, cfg.Dims)
	}
	if cfg.Hidden < 1 {
		return nil, fmt.Errorf("decoder hidden width must be >= 1, got %d", cfg.Hidden)
	}
	if (cfg.CondHidden || cfg.CondMsgs) && cfg.CondDims < 1 {
		return nil, fmt.Errorf("conditional decoder requires positive conditioning dims, got %d", cfg.CondDims)
	}
	if cfg.SkipFirst && partition.Total() < 2 {
		return nil, fmt.Errorf("skip-first requires at least 2 edge types, got %d", partition.Total())
	}

	d := &RNNDecoder{cfg: cfg, partition: partition}
	d.inputEmb = NewLinear(rng, cfg.Dims, cfg.Hidden)

	msgIn := 2 * cfg.Hidden
	if cfg.CondMsgs {
		msgIn += cfg.CondDims
	}
	for k := 0; k < partition.Total(); k++ {
		m := NewMLP(rng, msgIn, cfg.Hidden, cfg.Hidden, cfg.Dropout)
		d.msg = append(d.msg, m)
		d.mlps = append(d.mlps, m)
	}

	gruIn := 3 * cfg.Hidden // input embedding + aggregated messages + hidden
	d.gruR = NewLinear(rng, gruIn, cfg.Hidden)
	d.gruZ = NewLinear(rng, gruIn, cfg.Hidden)
	d.gruN = NewLinear(rng, gruIn, cfg.Hidden)

	outIn := cfg.Hidden
	if cfg.CondHidden {
		outIn += cfg.CondDims
	}
	d.out = NewMLP(rng, outIn, cfg.Hidden, cfg.Dims, cfg.Dropout)
	d.mlps = append(d.mlps, d.out)
	return d, nil
}

// Forward decodes one sample of shape [atoms][timesteps][dims] under the
// sampled edge tensor [pairs][total edge types]. The first predicted frame
// is the observed first frame; every later frame is the previous observed
// frame plus a predicted delta (teacher forcing).
func (d *RNNDecoder) Forward(sample [][][]float64, edges [][]*Value, geom *graph.Geometry, cond []float64) ([][][]*Value, error) {
	if len(sample) != d.cfg.Atoms || geom.Atoms != d.cfg.Atoms {
		return nil, fmt.Errorf("decoder sample has %d atoms, config has %d", len(sample), d.cfg.Atoms)
	}
	if len(edges) != geom.Pairs() {
		return nil, fmt.Errorf("edge tensor has %d pairs, geometry has %d", len(edges), geom.Pairs())
	}
	conditional := d.cfg.CondHidden || d.cfg.CondMsgs
	if conditional && len(cond) != d.cfg.CondDims {
		return nil, fmt.Errorf("conditioning vector has %d dims, decoder expects %d", len(cond), d.cfg.CondDims)
	}

	hidden := make([][]*Value, d.cfg.Atoms)
	pred := make([][][]*Value, d.cfg.Atoms)
	for i := range hidden {
		h := make([]*Value, d.cfg.Hidden)
		for j := range h {
			h[j] = V(0)
		}
		hidden[i] = h
		pred[i] = make([][]*Value, d.cfg.Timesteps)
		pred[i][0] = Constants(sample[i][0])
	}

	var condValues []*Value
	if conditional {
		condValues = Constants(cond)
	}

	startType := 0
	if d.cfg.SkipFirst {
		startType = 1
	}

	for t := 0; t < d.cfg.Timesteps-1; t++ {
		agg := make([][]*Value, d.cfg.Atoms)
		for i := range agg {
			row := make([]*Value, d.cfg.Hidden)
			for j := range row {
				row[j] = V(0)
			}
			agg[i] = row
		}

		for p := 0; p < geom.Pairs(); p++ {
			base := Concat(hidden[geom.Sender(p)], hidden[geom.Receiver(p)])
			if d.cfg.CondMsgs {
				base = Concat(base, condValues)
			}
			recv := geom.Receiver(p)
			for k := startType; k < d.partition.Total(); k++ {
				msg := d.msg[k].Forward(base)
				gate := edges[p][k]
				for j := range msg {
					agg[recv][j] = Add(agg[recv][j], Mul(gate, msg[j]))
				}
			}
		}

		norm := 1 / float64(d.cfg.Atoms-1)
		for i := 0; i < d.cfg.Atoms; i++ {
			frame := sample[i][t]
			if len(frame) != d.cfg.Dims {
				return nil, fmt.Errorf("atom %d frame %d has %d dims, decoder expects %d", i, t, len(frame), d.cfg.Dims)
			}
			u := d.inputEmb.Forward(Constants(frame))
			for j := range u {
				u[j] = Tanh(u[j])
			}
			for j := range agg[i] {
				agg[i][j] = Scale(agg[i][j], norm)
			}

			gateIn := Concat(u, agg[i], hidden[i])
			r := d.gruR.Forward(gateIn)
			z := d.gruZ.Forward(gateIn)
			for j := range r {
				r[j] = Sigmoid(r[j])
				z[j] = Sigmoid(z[j])
			}
			gated := make([]*Value, d.cfg.Hidden)
			for j := range gated {
				gated[j] = Mul(r[j], hidden[i][j])
			}
			n := d.gruN.Forward(Concat(u, agg[i], gated))
			next := make([]*Value, d.cfg.Hidden)
			for j := range next {
				n[j] = Tanh(n[j])
				next[j] = Add(Mul(Shift(Neg(z[j]), 1), n[j]), Mul(z[j], hidden[i][j]))
			}
			hidden[i] = next

			outIn := hidden[i]
			if d.cfg.CondHidden {
				outIn = Concat(hidden[i], condValues)
			}
			delta := d.out.Forward(outIn)
			frameOut := make([]*Value, d.cfg.Dims)
			for dIdx := range frameOut {
				frameOut[dIdx] = Add(V(frame[dIdx]), delta[dIdx])
			}
			pred[i][t+1] = frameOut
		}
	}
	return pred, nil
}

func (d *RNNDecoder) SetTraining(training bool) {
	for _, m := range d.mlps {
		m.SetTraining(training)
	}
}

func (d *RNNDecoder) Parameters() []*Value {
	params := d.inputEmb.Parameters()
	for _, m := range d.mlps {
		params = append(params, m.Parameters()...)
	}
	params = append(params, d.gruR.Parameters()...)
	params = append(params, d.gruZ.Parameters()...)
	params = append(params, d.gruN.Parameters()...)
	return params
}
