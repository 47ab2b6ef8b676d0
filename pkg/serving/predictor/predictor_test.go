package predictor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/synaptica-ai/rigcast/pkg/ml/lstm"
	"github.com/synaptica-ai/rigcast/pkg/ml/scaler"
	"github.com/synaptica-ai/rigcast/pkg/storage"
	"github.com/synaptica-ai/rigcast/pkg/training"
)

const lookback = 4

func saveModel(t *testing.T, store *storage.ArtifactStore, runID string, seed int64) *training.Result {
	t.Helper()
	sc, err := scaler.Fit("PRESSURE", []float64{10, 20, 30, 50})
	if err != nil {
		t.Fatalf("fit scaler: %v", err)
	}
	res := &training.Result{
		Feature: "PRESSURE",
		Scaler:  sc,
		Model: &training.ModelArtifact{
			Feature:      "PRESSURE",
			Architecture: training.Architecture{Kind: "lstm", Units: 3, Lookback: lookback, InputDim: 1},
			Params:       lstm.NewParams(3, 1, rand.New(rand.NewSource(seed))),
		},
		History: &training.History{Feature: "PRESSURE"},
	}
	if _, err := store.SaveResult(runID, res); err != nil {
		t.Fatalf("save result: %v", err)
	}
	return res
}

func newStore(t *testing.T) *storage.ArtifactStore {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewArtifactStore(filepath.Join(root, "interim"), filepath.Join(root, "artifacts"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestForecastSingleStep(t *testing.T) {
	store := newStore(t)
	res := saveModel(t, store, "run-1", 1)
	p := NewPredictor(nil, store)

	recent := []float64{99, 12, 18, 25, 40}
	got, err := p.Forecast(context.Background(), "PRESSURE", recent, 1)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}

	window := make([]float64, lookback)
	for i, v := range recent[1:] {
		window[i] = res.Scaler.TransformValue(v)
	}
	want := res.Scaler.InverseValue(res.Model.Params.Predict(window))
	if len(got.Values) != 1 || math.Abs(got.Values[0]-want) > 1e-12 {
		t.Fatalf("expected [%v], got %v", want, got.Values)
	}
	if got.Lookback != lookback || got.Set.RunID != "run-1" {
		t.Fatalf("unexpected forecast metadata %+v", got)
	}
}

func TestForecastFeedsPredictionsBack(t *testing.T) {
	store := newStore(t)
	res := saveModel(t, store, "run-1", 2)
	p := NewPredictor(nil, store)

	recent := []float64{12, 18, 25, 40}
	got, err := p.Forecast(context.Background(), "PRESSURE", recent, 3)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(got.Values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(got.Values))
	}

	window := make([]float64, lookback)
	for i, v := range recent {
		window[i] = res.Scaler.TransformValue(v)
	}
	for step := 0; step < 3; step++ {
		next := res.Model.Params.Predict(window)
		want := res.Scaler.InverseValue(next)
		if math.Abs(got.Values[step]-want) > 1e-12 {
			t.Fatalf("step %d: expected %v, got %v", step, want, got.Values[step])
		}
		window = append(window[1:], next)
	}
}

func TestForecastErrors(t *testing.T) {
	store := newStore(t)
	saveModel(t, store, "run-1", 1)
	p := NewPredictor(nil, store)
	ctx := context.Background()

	if _, err := p.Forecast(ctx, "PRESSURE", []float64{1, 2}, 1); !errors.Is(err, ErrShortHistory) {
		t.Fatalf("expected ErrShortHistory, got %v", err)
	}
	for _, h := range []int{0, -1, MaxHorizon + 1} {
		if _, err := p.Forecast(ctx, "PRESSURE", []float64{1, 2, 3, 4}, h); !errors.Is(err, ErrInvalidHorizon) {
			t.Fatalf("horizon %d: expected ErrInvalidHorizon, got %v", h, err)
		}
	}
	if _, err := p.Forecast(ctx, "PRESSURE", []float64{1, 2, math.NaN(), 4}, 1); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
	if _, err := p.Forecast(ctx, "FLOW", []float64{1, 2, 3, 4}, 1); !errors.Is(err, storage.ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
}

func TestBundleReloadsNewRun(t *testing.T) {
	store := newStore(t)
	saveModel(t, store, "run-1", 1)
	p := NewPredictor(nil, store)
	ctx := context.Background()

	first, err := p.Bundle(ctx, "PRESSURE")
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	again, err := p.Bundle(ctx, "PRESSURE")
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if first != again {
		t.Fatalf("expected cached bundle to be reused")
	}

	saveModel(t, store, "run-2", 7)
	latest, err := p.Bundle(ctx, "PRESSURE")
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if latest.Set.RunID != "run-2" {
		t.Fatalf("expected run-2 bundle, got %s", latest.Set.RunID)
	}
}
