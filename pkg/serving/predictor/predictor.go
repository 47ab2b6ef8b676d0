// Package predictor forecasts a feature with its latest trained model.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/synaptica-ai/rigcast/pkg/storage"
)

// MaxHorizon bounds recursive forecasting.
const MaxHorizon = 500

var (
	ErrShortHistory   = errors.New("not enough recent observations for the model lookback")
	ErrInvalidHorizon = errors.New("invalid forecast horizon")
	ErrNonFinite      = errors.New("recent observations must be finite")
)

// Forecast is the result of one Forecast call in raw feature units.
type Forecast struct {
	Feature  string
	Values   []float64
	Lookback int
	Set      storage.ArtifactSet
}

type Predictor struct {
	registry storage.Registry
	store    *storage.ArtifactStore
	cache    map[string]cachedBundle
	mu       sync.RWMutex
}

type cachedBundle struct {
	bundle    *storage.Bundle
	modelPath string
	modTime   int64
}

// NewPredictor resolves artifacts through registry and reads them from store.
// A nil registry reads the store's latest pointers directly.
func NewPredictor(registry storage.Registry, store *storage.ArtifactStore) *Predictor {
	if registry == nil {
		registry = storage.NewFileRegistry(store)
	}
	return &Predictor{
		registry: registry,
		store:    store,
		cache:    make(map[string]cachedBundle),
	}
}

// Forecast predicts the next horizon values of feature. recent holds raw
// observations, oldest first; only the last lookback of them are used. Each
// predicted value is fed back as the newest observation for the next step.
func (p *Predictor) Forecast(ctx context.Context, feature string, recent []float64, horizon int) (*Forecast, error) {
	if horizon <= 0 || horizon > MaxHorizon {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidHorizon, horizon, MaxHorizon)
	}
	bundle, err := p.Bundle(ctx, feature)
	if err != nil {
		return nil, err
	}

	lookback := bundle.Model.Architecture.Lookback
	if len(recent) < lookback {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrShortHistory, len(recent), lookback)
	}
	window := make([]float64, lookback)
	for i, v := range recent[len(recent)-lookback:] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFinite
		}
		window[i] = bundle.Scaler.TransformValue(v)
	}

	out := &Forecast{Feature: feature, Lookback: lookback, Set: bundle.Set, Values: make([]float64, 0, horizon)}
	for step := 0; step < horizon; step++ {
		next, err := bundle.Model.Predict(window)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, bundle.Scaler.InverseValue(next))
		copy(window, window[1:])
		window[lookback-1] = next
	}
	return out, nil
}

// Bundle returns the latest scaler and model for feature, reusing the cached
// copy while the model file is unchanged.
func (p *Predictor) Bundle(ctx context.Context, feature string) (*storage.Bundle, error) {
	set, err := p.registry.Latest(ctx, feature)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(set.ModelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", feature, storage.ErrNoArtifact)
		}
		return nil, err
	}
	mod := info.ModTime().UnixNano()

	p.mu.RLock()
	cached, ok := p.cache[feature]
	p.mu.RUnlock()
	if ok && cached.modelPath == set.ModelPath && cached.modTime == mod {
		return cached.bundle, nil
	}

	bundle, err := p.store.Load(set)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cache[feature] = cachedBundle{bundle: bundle, modelPath: set.ModelPath, modTime: mod}
	p.mu.Unlock()
	return bundle, nil
}
