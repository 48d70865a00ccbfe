package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"fnri/internal/data"
	"fnri/internal/graph"
	"fnri/internal/nn"
	"fnri/internal/objective"
	"fnri/internal/stats"
)

// Config is the immutable training configuration. It is validated once and
// never written after construction; everything derived from it lives in
// Runtime.
type Config struct {
	Atoms     int
	Dims      int
	Timesteps int
	CondDims  int

	Partition  []int
	SplitPoint int

	Epochs    int
	BatchSize int
	LR        float64
	LRDecay   int
	Gamma     float64
	Patience  int

	Temperature float64
	TempDecay   int
	Tau         float64
	Hard        bool

	Prior     bool
	SkipFirst bool

	CondHidden bool
	CondMsgs   bool

	Variance float64
	Beta     float64
	MSELoss  bool

	EncoderHidden  int
	DecoderHidden  int
	EncoderDropout float64
	DecoderDropout float64

	// Seed 0 means unseeded: the run draws from a time-based source.
	Seed int64

	// Resume restores the latest stored checkpoint before the epoch loop.
	Resume bool
}

func (c Config) Validate() error {
	if c.Atoms < 2 {
		return fmt.Errorf("atom count must be >= 2, got %d", c.Atoms)
	}
	if c.Dims < 1 {
		return fmt.Errorf("input dims must be >= 1, got %d", c.Dims)
	}
	if c.Timesteps < 2 {
		return fmt.Errorf("timestep count must be >= 2, got %d", c.Timesteps)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("epoch count must be >= 1, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("learning rate must be > 0, got %g", c.LR)
	}
	if c.LRDecay < 1 {
		return fmt.Errorf("lr decay step must be >= 1, got %d", c.LRDecay)
	}
	if c.Gamma <= 0 {
		return fmt.Errorf("lr decay factor must be > 0, got %g", c.Gamma)
	}
	if c.Patience < 0 {
		return fmt.Errorf("patience must be >= 0, got %d", c.Patience)
	}
	if c.Temperature <= 0 {
		return fmt.Errorf("gumbel temperature must be > 0, got %g", c.Temperature)
	}
	if c.TempDecay < 1 {
		return fmt.Errorf("temperature decay step must be >= 1, got %d", c.TempDecay)
	}
	if c.Tau <= 0 {
		return fmt.Errorf("temperature decay factor must be > 0, got %g", c.Tau)
	}
	if c.Variance <= 0 {
		return fmt.Errorf("output variance must be > 0, got %g", c.Variance)
	}
	if c.EncoderHidden < 1 || c.DecoderHidden < 1 {
		return fmt.Errorf("hidden widths must be >= 1, got %d and %d", c.EncoderHidden, c.DecoderHidden)
	}
	if (c.CondHidden || c.CondMsgs) && c.CondDims < 1 {
		return fmt.Errorf("conditional run requires positive conditioning dims, got %d", c.CondDims)
	}
	if _, err := graph.NewPartition(c.Partition); err != nil {
		return err
	}
	return nil
}

// Runtime holds the values derived once from a validated Config.
type Runtime struct {
	Geometry    *graph.Geometry
	Partition   graph.Partition
	Conditional bool
	Rng         *rand.Rand
}

func NewRuntime(cfg Config) (Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return Runtime{}, err
	}
	geom, err := graph.NewGeometry(cfg.Atoms)
	if err != nil {
		return Runtime{}, err
	}
	partition, err := graph.NewPartition(cfg.Partition)
	if err != nil {
		return Runtime{}, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return Runtime{
		Geometry:    geom,
		Partition:   partition,
		Conditional: cfg.CondHidden || cfg.CondMsgs,
		Rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Loaders groups the three independent dataset loaders.
type Loaders struct {
	Train data.Loader
	Valid data.Loader
	Test  data.Loader
}

// Summary is the outcome of one full training run.
type Summary struct {
	EpochsRun    int
	BestValLoss  float64
	StoppedEarly bool
	Posterior    [][]float64
	Generated    [][][][]float64
}

// Trainer owns the epoch loop, early stopping, posterior aggregation and
// generation. The recorder is the sole authority on "best so far".
type Trainer struct {
	cfg Config
	rt  Runtime

	encoder *nn.MLPEncoder
	decoder *nn.RNNDecoder

	optimizer    *nn.Adam
	lrSchedule   *nn.StepLR
	tempSchedule *nn.StepLR

	logPrior [][]float64

	loaders  Loaders
	recorder Recorder
	runDir   string
}

// New builds every trainable component from the configuration. runDir may be
// empty, in which case no filesystem artifacts are written.
func New(cfg Config, loaders Loaders, recorder Recorder, runDir string) (*Trainer, error) {
	rt, err := NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	if loaders.Train == nil || loaders.Valid == nil || loaders.Test == nil {
		return nil, fmt.Errorf("train, valid and test loaders are all required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}

	encoder, err := nn.NewMLPEncoder(rt.Rng, nn.EncoderConfig{
		Timesteps:  cfg.Timesteps,
		Dims:       cfg.Dims,
		Hidden:     cfg.EncoderHidden,
		Dropout:    cfg.EncoderDropout,
		SplitPoint: cfg.SplitPoint,
	}, rt.Partition)
	if err != nil {
		return nil, err
	}
	decoder, err := nn.NewRNNDecoder(rt.Rng, nn.DecoderConfig{
		Atoms:      cfg.Atoms,
		Timesteps:  cfg.Timesteps,
		Dims:       cfg.Dims,
		Hidden:     cfg.DecoderHidden,
		CondDims:   cfg.CondDims,
		CondHidden: cfg.CondHidden,
		CondMsgs:   cfg.CondMsgs,
		Dropout:    cfg.DecoderDropout,
		SkipFirst:  cfg.SkipFirst,
	}, rt.Partition)
	if err != nil {
		return nil, err
	}

	params := append(encoder.Parameters(), decoder.Parameters()...)
	optimizer, err := nn.NewAdam(params, cfg.LR)
	if err != nil {
		return nil, err
	}
	lrSchedule, err := nn.NewStepLR(cfg.LR, cfg.LRDecay, cfg.Gamma)
	if err != nil {
		return nil, err
	}
	tempSchedule, err := nn.NewStepLR(cfg.Temperature, cfg.TempDecay, cfg.Tau)
	if err != nil {
		return nil, err
	}

	var logPrior [][]float64
	if cfg.Prior {
		logPrior, err = sparsityLogPrior(rt.Partition)
		if err != nil {
			return nil, err
		}
	}

	t := &Trainer{
		cfg:          cfg,
		rt:           rt,
		encoder:      encoder,
		decoder:      decoder,
		optimizer:    optimizer,
		lrSchedule:   lrSchedule,
		tempSchedule: tempSchedule,
		logPrior:     logPrior,
		loaders:      loaders,
		recorder:     recorder,
		runDir:       runDir,
	}
	if err := recorder.Register("encoder", encoder); err != nil {
		return nil, err
	}
	if err := recorder.Register("decoder", decoder); err != nil {
		return nil, err
	}
	return t, nil
}

// sparsityLogPrior puts 0.9 on the first category of the first factor and
// spreads the remainder uniformly, then replicates that vector across all
// factors. Factors of a different size cannot host the replicated vector.
func sparsityLogPrior(partition graph.Partition) ([][]float64, error) {
	base := partition.Size(0)
	if base < 2 {
		return nil, fmt.Errorf("sparsity prior requires factor size >= 2, got %d", base)
	}
	vec := make([]float64, base)
	vec[0] = math.Log(0.9)
	for c := 1; c < base; c++ {
		vec[c] = math.Log(0.1 / float64(base-1))
	}

	out := make([][]float64, partition.Factors())
	for k := range out {
		if partition.Size(k) != base {
			return nil, fmt.Errorf("sparsity prior of size %d does not fit factor %d of size %d", base, k, partition.Size(k))
		}
		out[k] = append([]float64(nil), vec...)
	}
	return out, nil
}

func (t *Trainer) deps(loader data.Loader) PassDeps {
	return PassDeps{
		Loader:      loader,
		Encoder:     t.encoder,
		Decoder:     t.decoder,
		Optimizer:   t.optimizer,
		Geometry:    t.rt.Geometry,
		Partition:   t.rt.Partition,
		LogPrior:    t.logPrior,
		Temperature: t.tempSchedule.Value(),
		Hard:        t.cfg.Hard,
		Objective: objective.Config{
			Variance: t.cfg.Variance,
			Beta:     t.cfg.Beta,
			UseMSE:   t.cfg.MSELoss,
			Atoms:    t.cfg.Atoms,
		},
		Conditional: t.rt.Conditional,
		Rng:         t.rt.Rng,
	}
}

// Run executes the full training procedure: the epoch loop with early
// stopping, best-checkpoint restoration, posterior aggregation over the
// training set and generation over the test set.
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	if t.cfg.Resume {
		if err := t.recorder.Restore(ctx, false); err != nil {
			return Summary{}, fmt.Errorf("resume from checkpoint: %w", err)
		}
	}

	var summary Summary
	bestVal := math.Inf(1)
	stall := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		trainHist, _, err := RunPass(TrainPass(), t.deps(t.loaders.Train))
		if err != nil {
			return Summary{}, fmt.Errorf("epoch %d train pass: %w", epoch, err)
		}
		t.lrSchedule.Step()
		t.optimizer.SetLR(t.lrSchedule.Value())
		t.tempSchedule.Step()

		valHist, _, err := RunPass(EvaluatePass("valid"), t.deps(t.loaders.Valid))
		if err != nil {
			return Summary{}, fmt.Errorf("epoch %d validation pass: %w", epoch, err)
		}
		testHist, _, err := RunPass(EvaluatePass("test"), t.deps(t.loaders.Test))
		if err != nil {
			return Summary{}, fmt.Errorf("epoch %d test pass: %w", epoch, err)
		}

		if _, err := t.recorder.RecordScalars(ctx, trainHist, epoch, "train"); err != nil {
			return Summary{}, err
		}
		if _, err := t.recorder.RecordScalars(ctx, valHist, epoch, "valid"); err != nil {
			return Summary{}, err
		}
		if _, err := t.recorder.RecordScalars(ctx, testHist, epoch, "test"); err != nil {
			return Summary{}, err
		}

		valLoss, err := valHist.Mean("loss")
		if err != nil {
			return Summary{}, err
		}
		isBest, err := t.recorder.Store(ctx, valLoss)
		if err != nil {
			return Summary{}, err
		}

		summary.EpochsRun = epoch
		if isBest {
			bestVal = valLoss
			stall = 0
		} else {
			stall++
		}
		if stall > t.cfg.Patience {
			summary.StoppedEarly = true
			break
		}
	}
	summary.BestValLoss = bestVal

	if err := t.recorder.Restore(ctx, true); err != nil {
		return Summary{}, fmt.Errorf("restore best checkpoint: %w", err)
	}

	_, posterior, err := RunPass(AggregatePass(), t.deps(t.loaders.Train))
	if err != nil {
		return Summary{}, fmt.Errorf("posterior aggregation: %w", err)
	}
	summary.Posterior = posterior
	if t.runDir != "" {
		if err := stats.AppendPosterior(t.runDir, posterior); err != nil {
			return Summary{}, err
		}
	}

	genHist, generated, err := Generate(t.deps(t.loaders.Test), posterior)
	if err != nil {
		return Summary{}, fmt.Errorf("generation: %w", err)
	}
	if _, err := t.recorder.RecordScalars(ctx, genHist, summary.EpochsRun, "generation"); err != nil {
		return Summary{}, err
	}
	summary.Generated = generated
	if t.runDir != "" {
		if err := stats.WriteGeneratedOutput(t.runDir, generated); err != nil {
			return Summary{}, err
		}
	}
	return summary, nil
}
