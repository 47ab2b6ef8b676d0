package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRunFileDefaults(t *testing.T) {
	params, err := LoadRunFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Lookback != DefaultRunParams().Lookback {
		t.Fatalf("expected default lookback, got %d", params.Lookback)
	}
	if params.TrainFraction != 0.8 {
		t.Fatalf("expected default train fraction 0.8, got %v", params.TrainFraction)
	}
}

func TestLoadRunFileOverridesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := []byte("features: [TEMP_1, PRESSURE]\nlookback: 12\nepochs: 5\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write run file: %v", err)
	}

	params, err := LoadRunFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Features) != 2 || params.Features[1] != "PRESSURE" {
		t.Fatalf("unexpected features %v", params.Features)
	}
	if params.Lookback != 12 || params.Epochs != 5 {
		t.Fatalf("expected overrides, got lookback=%d epochs=%d", params.Lookback, params.Epochs)
	}
	if params.LearningRate != DefaultRunParams().LearningRate {
		t.Fatalf("expected default learning rate to survive, got %v", params.LearningRate)
	}
}

func TestLoadRunFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("lookback: [oops"), 0o644); err != nil {
		t.Fatalf("write run file: %v", err)
	}
	if _, err := LoadRunFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestKafkaBrokersSplitOnComma(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}
