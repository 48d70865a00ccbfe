package storage

import (
	"context"
	"reflect"
	"testing"

	"fnri/internal/model"
)

func TestMemoryStoreComponentStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.ComponentState{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Component:       "encoder",
		Epoch:           3,
		Params:          []float64{0.1, -0.2, 0.3},
	}
	if err := store.SaveComponentState(ctx, "run-1", input); err != nil {
		t.Fatalf("save component state: %v", err)
	}

	output, ok, err := store.GetComponentState(ctx, "run-1", "encoder")
	if err != nil {
		t.Fatalf("get component state: %v", err)
	}
	if !ok {
		t.Fatal("expected stored component state")
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v vs %+v", input, output)
	}

	// mutating the returned slice must not leak into the store
	output.Params[0] = 99
	again, _, err := store.GetComponentState(ctx, "run-1", "encoder")
	if err != nil {
		t.Fatalf("get component state: %v", err)
	}
	if again.Params[0] != 0.1 {
		t.Fatalf("stored params mutated through returned slice: %v", again.Params)
	}
}

func TestMemoryStoreBestStateIsSeparate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	current := model.ComponentState{Component: "decoder", Epoch: 5, Params: []float64{1}}
	best := model.ComponentState{Component: "decoder", Epoch: 2, Params: []float64{2}}
	if err := store.SaveComponentState(ctx, "run-1", current); err != nil {
		t.Fatalf("save current: %v", err)
	}
	if err := store.SaveBestState(ctx, "run-1", best); err != nil {
		t.Fatalf("save best: %v", err)
	}

	got, ok, err := store.GetBestState(ctx, "run-1", "decoder")
	if err != nil || !ok {
		t.Fatalf("get best state: ok=%t err=%v", ok, err)
	}
	if got.Epoch != 2 || got.Params[0] != 2 {
		t.Fatalf("best state overwritten by current: %+v", got)
	}

	_, ok, err = store.GetBestState(ctx, "run-1", "encoder")
	if err != nil {
		t.Fatalf("get missing best state: %v", err)
	}
	if ok {
		t.Fatal("expected no best state for unregistered component")
	}
}

func TestMemoryStoreMetricSeriesFiltersPrefixAndName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	points := []model.MetricPoint{
		{Epoch: 1, Prefix: "train", Name: "loss", Value: 3.0},
		{Epoch: 1, Prefix: "valid", Name: "loss", Value: 4.0},
		{Epoch: 2, Prefix: "train", Name: "loss", Value: 2.5},
		{Epoch: 2, Prefix: "train", Name: "mse", Value: 0.4},
	}
	if err := store.SaveMetricPoints(ctx, "run-1", points); err != nil {
		t.Fatalf("save metric points: %v", err)
	}

	series, ok, err := store.GetMetricSeries(ctx, "run-1", "train", "loss")
	if err != nil || !ok {
		t.Fatalf("get metric series: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(series, []float64{3.0, 2.5}) {
		t.Fatalf("unexpected series: %v", series)
	}

	_, ok, err = store.GetMetricSeries(ctx, "run-1", "train", "missing")
	if err != nil {
		t.Fatalf("get missing series: %v", err)
	}
	if ok {
		t.Fatal("expected no series for unknown metric name")
	}
}

func TestMemoryStoreRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunSummary{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           "run-1",
		EpochsRun:       7,
		BestValLoss:     1.25,
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
