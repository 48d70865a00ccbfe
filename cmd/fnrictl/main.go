package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fnri/internal/data"
	"fnri/internal/model"
	"fnri/internal/stats"
	"fnri/internal/storage"
	"fnri/internal/train"
)

const artifactsDir = "runs"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "metrics":
		return runMetrics(ctx, args[1:])
	case "posterior":
		return runPosterior(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: fnrictl <init|train|runs|metrics|posterior> [flags]", msg)
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fnri.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config YAML path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	dataDir := fs.String("data-dir", "", "dataset folder holding traj_{split}_{suffix}.csv files")
	suffix := fs.String("suffix", "springs", "dataset file suffix")
	atoms := fs.Int("atoms", 5, "atom count")
	dims := fs.Int("dims", 4, "input dimensions per atom per timestep")
	timesteps := fs.Int("timesteps", 49, "timesteps per trajectory")
	condDims := fs.Int("cond-dims", 0, "conditioning feature dims (0 disables)")
	partition := fs.String("partition", "2,2", "edge-type partition, comma-separated factor sizes")
	splitPoint := fs.Int("split-point", 0, "shared encoder trunk stages before factors split (0-2)")
	epochs := fs.Int("epochs", 500, "maximum epoch count")
	batchSize := fs.Int("batch-size", 128, "batch size")
	lr := fs.Float64("lr", 5e-4, "learning rate")
	lrDecay := fs.Int("lr-decay", 200, "learning rate decay step size in epochs")
	gamma := fs.Float64("gamma", 0.5, "learning rate decay factor")
	patience := fs.Int("patience", 10, "early-stop patience in non-improving epochs")
	temperature := fs.Float64("temp", 0.5, "gumbel-softmax temperature")
	tempDecay := fs.Int("temp-decay", 100, "temperature decay step size in epochs")
	tau := fs.Float64("tau", 0.5, "temperature decay factor")
	hard := fs.Bool("hard", false, "hard (straight-through) sampling")
	prior := fs.Bool("prior", false, "use the sparsity prior instead of uniform")
	skipFirst := fs.Bool("skip-first", false, "treat the first edge type as no-edge in the decoder")
	condHidden := fs.Bool("cond-hidden", false, "inject conditioning features at the decoder hidden layer")
	condMsgs := fs.Bool("cond-msgs", false, "inject conditioning features into every decoder message")
	variance := fs.Float64("var", 5e-5, "output variance of the gaussian likelihood")
	beta := fs.Float64("beta", 1, "KL scale")
	mseLoss := fs.Bool("mse", false, "optimize MSE instead of the ELBO")
	encoderHidden := fs.Int("enc-hidden", 256, "encoder hidden width")
	decoderHidden := fs.Int("dec-hidden", 256, "decoder hidden width")
	encoderDropout := fs.Float64("enc-dropout", 0, "encoder dropout rate")
	decoderDropout := fs.Float64("dec-dropout", 0, "decoder dropout rate")
	seed := fs.Int64("seed", 0, "rng seed (0 = unseeded)")
	resume := fs.Bool("resume", false, "restore the latest checkpoint for run-id before training")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fnri.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg := fileConfig{
		RunID:          *runID,
		DataDir:        *dataDir,
		Suffix:         *suffix,
		ArtifactsDir:   artifactsDir,
		Store:          *storeKind,
		DBPath:         *dbPath,
		Atoms:          *atoms,
		Dims:           *dims,
		Timesteps:      *timesteps,
		CondDims:       *condDims,
		Partition:      *partition,
		SplitPoint:     *splitPoint,
		Epochs:         *epochs,
		BatchSize:      *batchSize,
		LR:             *lr,
		LRDecay:        *lrDecay,
		Gamma:          *gamma,
		Patience:       *patience,
		Temperature:    *temperature,
		TempDecay:      *tempDecay,
		Tau:            *tau,
		Hard:           *hard,
		Prior:          *prior,
		SkipFirst:      *skipFirst,
		CondHidden:     *condHidden,
		CondMsgs:       *condMsgs,
		Variance:       *variance,
		Beta:           *beta,
		MSELoss:        *mseLoss,
		EncoderHidden:  *encoderHidden,
		DecoderHidden:  *decoderHidden,
		EncoderDropout: *encoderDropout,
		DecoderDropout: *decoderDropout,
		Seed:           *seed,
		Resume:         *resume,
	}
	if *configPath != "" {
		loaded, err := loadFileConfig(*configPath)
		if err != nil {
			return err
		}
		mergeFlagOverrides(&loaded, cfg, setFlags)
		cfg = loaded
		if cfg.ArtifactsDir == "" {
			cfg.ArtifactsDir = artifactsDir
		}
	}
	if cfg.DataDir == "" {
		return errors.New("train requires --data-dir (or data_dir in the config file)")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	trainCfg, err := cfg.trainConfig()
	if err != nil {
		return err
	}

	trainLoader, valLoader, testLoader, err := data.LoadSplits(cfg.DataDir, cfg.Suffix, trainCfg.BatchSize, trainCfg.CondDims)
	if err != nil {
		return err
	}
	firstMean, firstStd, err := data.FirstFrameStats(trainLoader)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Store, cfg.DBPath)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	recorder, err := train.NewStoreRecorder(store, cfg.RunID)
	if err != nil {
		return err
	}
	defer func() {
		_ = recorder.Close()
	}()

	runDir, err := stats.WriteRunConfig(cfg.ArtifactsDir, runConfigRecord(cfg, trainCfg, firstMean, firstStd))
	if err != nil {
		return err
	}

	trainer, err := train.New(trainCfg, train.Loaders{Train: trainLoader, Valid: valLoader, Test: testLoader}, recorder, runDir)
	if err != nil {
		return err
	}

	summary, err := trainer.Run(ctx)
	if err != nil {
		return err
	}

	if err := store.SaveRunSummary(ctx, model.RunSummary{
		VersionedRecord: model.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion},
		RunID:           cfg.RunID,
		EpochsRun:       summary.EpochsRun,
		BestValLoss:     summary.BestValLoss,
		StoppedEarly:    summary.StoppedEarly,
	}); err != nil {
		return err
	}
	if err := stats.AppendRunIndex(cfg.ArtifactsDir, stats.RunIndexEntry{
		RunID:        cfg.RunID,
		Suffix:       cfg.Suffix,
		Atoms:        trainCfg.Atoms,
		Epochs:       trainCfg.Epochs,
		EpochsRun:    summary.EpochsRun,
		BestValLoss:  summary.BestValLoss,
		StoppedEarly: summary.StoppedEarly,
		Seed:         trainCfg.Seed,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s epochs_run=%d best_val_loss=%.6f stopped_early=%t\n",
		cfg.RunID, summary.EpochsRun, summary.BestValLoss, summary.StoppedEarly)
	fmt.Printf("generated_samples=%d artifacts_dir=%s\n", len(summary.Generated), runDir)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s suffix=%s atoms=%d epochs_run=%d/%d best_val_loss=%.6f stopped_early=%t seed=%d\n",
			e.RunID, e.CreatedAtUTC, e.Suffix, e.Atoms, e.EpochsRun, e.Epochs, e.BestValLoss, e.StoppedEarly, e.Seed)
	}
	return nil
}

func runMetrics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	prefix := fs.String("prefix", "valid", "metric prefix: train|valid|test|generation")
	name := fs.String("name", "loss", "metric name")
	jsonOut := fs.Bool("json", false, "emit series as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fnri.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("metrics requires --run-id")
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	series, ok, err := store.GetMetricSeries(ctx, *runID, *prefix, *name)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("no %s/%s series for run %s\n", *prefix, *name, *runID)
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	}
	for epoch, value := range series {
		fmt.Printf("epoch=%d %s_%s=%.6f\n", epoch+1, *prefix, *name, value)
	}
	return nil
}

func runPosterior(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("posterior", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit posterior records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("posterior requires --run-id")
	}

	records, ok, err := stats.ReadPosteriorLog(filepath.Join(artifactsDir, *runID))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("no posterior log for run %s\n", *runID)
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for i, record := range records {
		fmt.Printf("record=%d values=%d first=%.6f\n", i+1, len(record), record[0])
	}
	return nil
}

// mergeFlagOverrides copies every explicitly set command-line value over the
// file-provided configuration.
func mergeFlagOverrides(dst *fileConfig, flags fileConfig, set map[string]bool) {
	if set["run-id"] {
		dst.RunID = flags.RunID
	}
	if set["data-dir"] {
		dst.DataDir = flags.DataDir
	}
	if set["suffix"] {
		dst.Suffix = flags.Suffix
	}
	if set["store"] {
		dst.Store = flags.Store
	}
	if set["db-path"] {
		dst.DBPath = flags.DBPath
	}
	if set["atoms"] {
		dst.Atoms = flags.Atoms
	}
	if set["dims"] {
		dst.Dims = flags.Dims
	}
	if set["timesteps"] {
		dst.Timesteps = flags.Timesteps
	}
	if set["cond-dims"] {
		dst.CondDims = flags.CondDims
	}
	if set["partition"] {
		dst.Partition = flags.Partition
	}
	if set["split-point"] {
		dst.SplitPoint = flags.SplitPoint
	}
	if set["epochs"] {
		dst.Epochs = flags.Epochs
	}
	if set["batch-size"] {
		dst.BatchSize = flags.BatchSize
	}
	if set["lr"] {
		dst.LR = flags.LR
	}
	if set["lr-decay"] {
		dst.LRDecay = flags.LRDecay
	}
	if set["gamma"] {
		dst.Gamma = flags.Gamma
	}
	if set["patience"] {
		dst.Patience = flags.Patience
	}
	if set["temp"] {
		dst.Temperature = flags.Temperature
	}
	if set["temp-decay"] {
		dst.TempDecay = flags.TempDecay
	}
	if set["tau"] {
		dst.Tau = flags.Tau
	}
	if set["hard"] {
		dst.Hard = flags.Hard
	}
	if set["prior"] {
		dst.Prior = flags.Prior
	}
	if set["skip-first"] {
		dst.SkipFirst = flags.SkipFirst
	}
	if set["cond-hidden"] {
		dst.CondHidden = flags.CondHidden
	}
	if set["cond-msgs"] {
		dst.CondMsgs = flags.CondMsgs
	}
	if set["var"] {
		dst.Variance = flags.Variance
	}
	if set["beta"] {
		dst.Beta = flags.Beta
	}
	if set["mse"] {
		dst.MSELoss = flags.MSELoss
	}
	if set["enc-hidden"] {
		dst.EncoderHidden = flags.EncoderHidden
	}
	if set["dec-hidden"] {
		dst.DecoderHidden = flags.DecoderHidden
	}
	if set["enc-dropout"] {
		dst.EncoderDropout = flags.EncoderDropout
	}
	if set["dec-dropout"] {
		dst.DecoderDropout = flags.DecoderDropout
	}
	if set["seed"] {
		dst.Seed = flags.Seed
	}
	if set["resume"] {
		dst.Resume = flags.Resume
	}
}

func runConfigRecord(cfg fileConfig, trainCfg train.Config, firstMean, firstStd []float64) stats.RunConfigRecord {
	return stats.RunConfigRecord{
		RunID:          cfg.RunID,
		Suffix:         cfg.Suffix,
		Atoms:          trainCfg.Atoms,
		Dims:           trainCfg.Dims,
		Timesteps:      trainCfg.Timesteps,
		CondDims:       trainCfg.CondDims,
		Partition:      trainCfg.Partition,
		SplitPoint:     trainCfg.SplitPoint,
		Epochs:         trainCfg.Epochs,
		BatchSize:      trainCfg.BatchSize,
		LR:             trainCfg.LR,
		LRDecay:        trainCfg.LRDecay,
		Gamma:          trainCfg.Gamma,
		Patience:       trainCfg.Patience,
		Temperature:    trainCfg.Temperature,
		TempDecay:      trainCfg.TempDecay,
		Tau:            trainCfg.Tau,
		Hard:           trainCfg.Hard,
		Prior:          trainCfg.Prior,
		SkipFirst:      trainCfg.SkipFirst,
		CondHidden:     trainCfg.CondHidden,
		CondMsgs:       trainCfg.CondMsgs,
		Variance:       trainCfg.Variance,
		Beta:           trainCfg.Beta,
		MSELoss:        trainCfg.MSELoss,
		Seed:           trainCfg.Seed,
		EncoderHidden:  trainCfg.EncoderHidden,
		DecoderHidden:  trainCfg.DecoderHidden,
		EncoderDropout: trainCfg.EncoderDropout,
		DecoderDropout: trainCfg.DecoderDropout,
		FirstFrameMean: firstMean,
		FirstFrameStd:  firstStd,
	}
}
