//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"fnri/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "fnri.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreComponentStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	input := model.ComponentState{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Component:       "encoder",
		Epoch:           2,
		Params:          []float64{0.5, 0.25, -1},
	}
	if err := store.SaveComponentState(ctx, "run-1", input); err != nil {
		t.Fatalf("save component state: %v", err)
	}

	output, ok, err := store.GetComponentState(ctx, "run-1", "encoder")
	if err != nil || !ok {
		t.Fatalf("get component state: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v vs %+v", input, output)
	}

	// upsert overwrites
	input.Epoch = 3
	input.Params = []float64{1, 1, 1}
	if err := store.SaveComponentState(ctx, "run-1", input); err != nil {
		t.Fatalf("overwrite component state: %v", err)
	}
	output, _, err = store.GetComponentState(ctx, "run-1", "encoder")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if output.Epoch != 3 {
		t.Fatalf("expected epoch 3 after overwrite, got %d", output.Epoch)
	}
}

func TestSQLiteStoreBestStateIsSeparate(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	if err := store.SaveComponentState(ctx, "run-1", model.ComponentState{Component: "decoder", Epoch: 5}); err != nil {
		t.Fatalf("save current: %v", err)
	}
	if err := store.SaveBestState(ctx, "run-1", model.ComponentState{Component: "decoder", Epoch: 2}); err != nil {
		t.Fatalf("save best: %v", err)
	}

	best, ok, err := store.GetBestState(ctx, "run-1", "decoder")
	if err != nil || !ok {
		t.Fatalf("get best state: ok=%t err=%v", ok, err)
	}
	if best.Epoch != 2 {
		t.Fatalf("best state overwritten by current: %+v", best)
	}
}

func TestSQLiteStoreMetricSeriesOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	if err := store.SaveMetricPoints(ctx, "run-1", []model.MetricPoint{
		{Epoch: 2, Prefix: "train", Name: "loss", Value: 2.0},
		{Epoch: 1, Prefix: "train", Name: "loss", Value: 3.0},
		{Epoch: 1, Prefix: "valid", Name: "loss", Value: 9.0},
	}); err != nil {
		t.Fatalf("save metric points: %v", err)
	}

	series, ok, err := store.GetMetricSeries(ctx, "run-1", "train", "loss")
	if err != nil || !ok {
		t.Fatalf("get metric series: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(series, []float64{3.0, 2.0}) {
		t.Fatalf("series not ordered by epoch: %v", series)
	}
}

func TestSQLiteStoreRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	input := model.RunSummary{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           "run-1",
		EpochsRun:       4,
		BestValLoss:     1.5,
		StoppedEarly:    true,
	}
	if err := store.SaveRunSummary(ctx, input); err != nil {
		t.Fatalf("save run summary: %v", err)
	}

	output, ok, err := store.GetRunSummary(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run summary: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v vs %+v", input, output)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "fnri.db"))
	_, _, err := store.GetComponentState(context.Background(), "run-1", "encoder")
	if err == nil {
		t.Fatal("expected error before init")
	}
}
