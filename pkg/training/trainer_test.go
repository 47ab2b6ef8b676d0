package training

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/ml/lstm"
	"github.com/synaptica-ai/rigcast/pkg/ml/window"
)

func testConfig() Config {
	return Config{
		Feature:      "PRESSURE",
		Lookback:     3,
		Units:        4,
		LearningRate: 0.01,
		Epochs:       4,
		BatchSize:    4,
		Patience:     2,
		Seed:         1,
	}
}

func sineSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + 3*math.Sin(float64(i)/3)
	}
	return out
}

func featureTable(feature string, values []float64) *dataset.Table {
	rows := make([]dataset.Row, len(values))
	for i, v := range values {
		rows[i] = dataset.Row{feature: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	t := dataset.NewTable()
	t.Append([]string{feature}, rows)
	return t
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*Config)
	}{
		{"feature", func(c *Config) { c.Feature = "" }},
		{"lookback", func(c *Config) { c.Lookback = 0 }},
		{"lstm_units", func(c *Config) { c.Units = -1 }},
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"batch_size", func(c *Config) { c.BatchSize = 0 }},
		{"patience", func(c *Config) { c.Patience = 0 }},
		{"learning_rate", func(c *Config) { c.LearningRate = 0 }},
		{"learning_rate", func(c *Config) { c.LearningRate = math.NaN() }},
		{"validation_fraction", func(c *Config) { c.ValidationFraction = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := NewTrainer(cfg)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, ce.Field)
			}
		})
	}
}

func TestPrepareBuildsWindows(t *testing.T) {
	tr, err := NewTrainer(testConfig())
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if err := tr.Prepare(featureTable("PRESSURE", sineSeries(20))); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if tr.State() != StatePrepared {
		t.Fatalf("expected prepared, got %s", tr.State())
	}
	// 17 windows, trailing 20% held out
	if tr.fitSet.Len() != 13 || tr.valSet.Len() != 4 {
		t.Fatalf("expected 13/4 split, got %d/%d", tr.fitSet.Len(), tr.valSet.Len())
	}
	for _, w := range tr.fitSet.Windows {
		for _, v := range w {
			if v < 0 || v > 1 {
				t.Fatalf("window value %v outside [0,1]", v)
			}
		}
	}
}

func TestPrepareErrors(t *testing.T) {
	t.Run("short series", func(t *testing.T) {
		tr, _ := NewTrainer(testConfig())
		err := tr.Prepare(featureTable("PRESSURE", []float64{1, 2, 3}))
		if !errors.Is(err, window.ErrInsufficientData) {
			t.Fatalf("expected ErrInsufficientData, got %v", err)
		}
		if tr.State() != StateFailed {
			t.Fatalf("expected failed state, got %s", tr.State())
		}
	})
	t.Run("non-numeric", func(t *testing.T) {
		tr, _ := NewTrainer(testConfig())
		table := dataset.NewTable()
		table.Append([]string{"PRESSURE"}, []dataset.Row{{"PRESSURE": "1"}, {"PRESSURE": "high"}})
		err := tr.Prepare(table)
		if !errors.Is(err, dataset.ErrNonNumeric) {
			t.Fatalf("expected ErrNonNumeric, got %v", err)
		}
	})
	t.Run("unknown column", func(t *testing.T) {
		tr, _ := NewTrainer(testConfig())
		err := tr.Prepare(featureTable("TEMP", sineSeries(20)))
		if !errors.Is(err, dataset.ErrUnknownColumn) {
			t.Fatalf("expected ErrUnknownColumn, got %v", err)
		}
	})
}

func TestFitRecordsHistory(t *testing.T) {
	tr, _ := NewTrainer(testConfig())
	if err := tr.PrepareSeries(sineSeries(40)); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	res, err := tr.Fit(context.Background())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if tr.State() != StateFinished {
		t.Fatalf("expected finished, got %s", tr.State())
	}
	if n := res.History.Len(); n == 0 || n > 4 {
		t.Fatalf("expected 1..4 epochs, got %d", n)
	}
	for i, m := range res.History.Epochs {
		if m.Epoch != i {
			t.Fatalf("epoch index %d at position %d", m.Epoch, i)
		}
		if math.Abs(m.RMSE-math.Sqrt(m.Loss)) > 1e-12 || math.Abs(m.ValRMSE-math.Sqrt(m.ValLoss)) > 1e-12 {
			t.Fatalf("rmse does not match loss at epoch %d", i)
		}
	}
	if err := res.Model.Validate(); err != nil {
		t.Fatalf("model: %v", err)
	}
	if res.Model.Architecture.Lookback != 3 || res.Model.Architecture.Units != 4 {
		t.Fatalf("unexpected architecture %+v", res.Model.Architecture)
	}
	if _, err := tr.Fit(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second fit should fail with ErrInvalidState, got %v", err)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	run := func() []float64 {
		tr, _ := NewTrainer(testConfig())
		if err := tr.PrepareSeries(sineSeries(30)); err != nil {
			t.Fatalf("prepare: %v", err)
		}
		res, err := tr.Fit(context.Background())
		if err != nil {
			t.Fatalf("fit: %v", err)
		}
		return res.Model.Params.Data
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("weight %d differs between identical runs", i)
		}
	}
}

func TestFitEarlyStoppingRestoresBest(t *testing.T) {
	cfg := testConfig()
	cfg.LearningRate = 1e-9
	cfg.MinDelta = 1e-3
	cfg.Epochs = 10
	cfg.Patience = 2
	tr, _ := NewTrainer(cfg)
	if err := tr.PrepareSeries(sineSeries(30)); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	res, err := tr.Fit(context.Background())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !res.Stopped || res.History.Len() != 3 {
		t.Fatalf("expected stop after 3 epochs, stopped=%v epochs=%d", res.Stopped, res.History.Len())
	}
	if res.Model.BestEpoch != 0 || !res.Model.Restored {
		t.Fatalf("expected restored epoch 0, got %d (restored=%v)", res.Model.BestEpoch, res.Model.Restored)
	}

	// patience//2 == 1: the rate shrinks after every stalled epoch
	rates := []float64{1e-9, 1e-9, 0.75e-9}
	for i, want := range rates {
		if got := res.History.Epochs[i].LearningRate; math.Abs(got-want) > 1e-20 {
			t.Fatalf("epoch %d lr %v, want %v", i, got, want)
		}
	}

	ev := lstm.NewEvaluator(res.Model.Params, cfg.Lookback)
	got := ev.MSE(res.Model.Params, tr.valSet.Windows, tr.valSet.Labels)
	if got != res.History.Epochs[0].ValLoss {
		t.Fatalf("restored model val loss %v, epoch 0 recorded %v", got, res.History.Epochs[0].ValLoss)
	}
}

func TestFitDivergence(t *testing.T) {
	cfg := testConfig()
	cfg.LearningRate = math.MaxFloat64
	tr, _ := NewTrainer(cfg)
	if err := tr.PrepareSeries(sineSeries(30)); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	_, err := tr.Fit(context.Background())
	if !IsDiverged(err) {
		t.Fatalf("expected divergence, got %v", err)
	}
	var te *TrainingError
	if !errors.As(err, &te) || te.History.Len() == 0 {
		t.Fatalf("expected TrainingError with partial history, got %v", err)
	}
	if tr.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", tr.State())
	}
}

func TestFitHonoursCancellation(t *testing.T) {
	tr, _ := NewTrainer(testConfig())
	if err := tr.PrepareSeries(sineSeries(30)); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Fit(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHistoryJSON(t *testing.T) {
	h := History{Feature: "PRESSURE", Epochs: []EpochMetrics{
		{Epoch: 0, Loss: 0.04, RMSE: 0.2, ValLoss: 0.09, ValRMSE: 0.3, LearningRate: 0.001},
		{Epoch: 1, Loss: 0.01, RMSE: 0.1, ValLoss: 0.04, ValRMSE: 0.2, LearningRate: 0.00075},
	}}
	payload, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"loss", "root_mean_squared_error", "val_loss", "val_root_mean_squared_error", "lr"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %s in %s", key, payload)
		}
	}
	var back History
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != 2 || back.Epochs[1].LearningRate != 0.00075 {
		t.Fatalf("unexpected history %+v", back)
	}

	h.Epochs[1].ValLoss = math.NaN()
	if _, err := json.Marshal(h); err == nil {
		t.Fatal("expected an error marshalling a diverged history")
	}
}
