package nn

import (
	"fmt"
	"math/rand"

	"fnri/internal/graph"
)

// EncoderConfig sizes the edge-type encoder.
type EncoderConfig struct {
	Timesteps int
	Dims      int
	Hidden    int
	Dropout   float64
	// SplitPoint is the number of edge-trunk stages shared between factors
	// before they branch: 0 = fully separate trunks per factor, 1 = shared
	// first stage, 2 = shared trunk with per-factor heads only.
	SplitPoint int
}

const encoderTrunkStages = 2

// MLPEncoder maps a trajectory sample plus the graph geometry to per-factor
// edge-type logits. Atom trajectories are embedded with a shared MLP, edge
// features are the concatenated sender/receiver embeddings, and each factor
// owns a logit head fed by a trunk shared up to the configured split point.
type MLPEncoder struct {
	cfg       EncoderConfig
	partition graph.Partition

	emb    *MLP
	stage1 []*MLP
	stage2 []*MLP
	heads  []*Linear

	mlps []*MLP
}

func NewMLPEncoder(rng *rand.Rand, cfg EncoderConfig, partition graph.Partition) (*MLPEncoder, error) {
	if cfg.Timesteps < 1 || cfg.Dims < 1 {
		return nil, fmt.Errorf("encoder requires positive timesteps and dims, got %d x %d", cfg.Timesteps, cfg.Dims)
	}
	if cfg.Hidden < 1 {
		return nil, fmt.Errorf("encoder hidden width must be >= 1, got %d", cfg.Hidden)
	}
	if cfg.SplitPoint < 0 || cfg.SplitPoint > encoderTrunkStages {
		return nil, fmt.Errorf("encoder split point must be in [0, %d], got %d", encoderTrunkStages, cfg.SplitPoint)
	}

	e := &MLPEncoder{cfg: cfg, partition: partition}
	e.emb = NewMLP(rng, cfg.Timesteps*cfg.Dims, cfg.Hidden, cfg.Hidden, cfg.Dropout)
	e.mlps = append(e.mlps, e.emb)

	factors := partition.Factors()
	stage1Count, stage2Count := factors, factors
	if cfg.SplitPoint >= 1 {
		stage1Count = 1
	}
	if cfg.SplitPoint >= 2 {
		stage2Count = 1
	}
	for i := 0; i < stage1Count; i++ {
		m := NewMLP(rng, 2*cfg.Hidden, cfg.Hidden, cfg.Hidden, cfg.Dropout)
		e.stage1 = append(e.stage1, m)
		e.mlps = append(e.mlps, m)
	}
	for i := 0; i < stage2Count; i++ {
		m := NewMLP(rng, cfg.Hidden, cfg.Hidden, cfg.Hidden, cfg.Dropout)
		e.stage2 = append(e.stage2, m)
		e.mlps = append(e.mlps, m)
	}
	for k := 0; k < factors; k++ {
		e.heads = append(e.heads, NewLinear(rng, cfg.Hidden, partition.Size(k)))
	}
	return e, nil
}

// Forward returns logits of shape [pairs][total edge types] for one sample
// of shape [atoms][timesteps][dims].
func (e *MLPEncoder) Forward(sample [][][]float64, geom *graph.Geometry) ([][]*Value, error) {
	if len(sample) != geom.Atoms {
		return nil, fmt.Errorf("encoder sample has %d atoms, geometry has %d", len(sample), geom.Atoms)
	}

	embedded := make([][]*Value, geom.Atoms)
	for i, atom := range sample {
		flat := make([]*Value, 0, e.cfg.Timesteps*e.cfg.Dims)
		if len(atom) != e.cfg.Timesteps {
			return nil, fmt.Errorf("atom %d has %d timesteps, encoder expects %d", i, len(atom), e.cfg.Timesteps)
		}
		for t, frame := range atom {
			if len(frame) != e.cfg.Dims {
				return nil, fmt.Errorf("atom %d frame %d has %d dims, encoder expects %d", i, t, len(frame), e.cfg.Dims)
			}
			flat = append(flat, Constants(frame)...)
		}
		h := e.emb.Forward(flat)
		for j := range h {
			h[j] = Tanh(h[j])
		}
		embedded[i] = h
	}

	factors := e.partition.Factors()
	logits := make([][]*Value, geom.Pairs())
	for p := 0; p < geom.Pairs(); p++ {
		feat := Concat(embedded[geom.Sender(p)], embedded[geom.Receiver(p)])
		row := make([]*Value, 0, e.partition.Total())
		for k := 0; k < factors; k++ {
			t1 := e.stageFor(e.stage1, k, factors).Forward(feat)
			for j := range t1 {
				t1[j] = Tanh(t1[j])
			}
			t2 := e.stageFor(e.stage2, k, factors).Forward(t1)
			for j := range t2 {
				t2[j] = Tanh(t2[j])
			}
			row = append(row, e.heads[k].Forward(t2)...)
		}
		logits[p] = row
	}
	return logits, nil
}

func (e *MLPEncoder) stageFor(stage []*MLP, factor, factors int) *MLP {
	if len(stage) == 1 && factors > 1 {
		return stage[0]
	}
	return stage[factor]
}

func (e *MLPEncoder) SetTraining(training bool) {
	for _, m := range e.mlps {
		m.SetTraining(training)
	}
}

func (e *MLPEncoder) Parameters() []*Value {
	var params []*Value
	for _, m := range e.mlps {
		params = append(params, m.Parameters()...)
	}
	for _, h := range e.heads {
		params = append(params, h.Parameters()...)
	}
	return params
}
