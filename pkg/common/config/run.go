package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RunParams are the per-run knobs handed to the pipeline. Field names follow
// the hyperparameter names used in run files.
type RunParams struct {
	Features      []string `yaml:"features" json:"features"`
	TrainFraction float64  `yaml:"train_fraction" json:"train_fraction"`
	Lookback      int      `yaml:"lookback" json:"lookback"`
	LSTMUnits     int      `yaml:"lstm_units" json:"lstm_units"`
	LearningRate  float64  `yaml:"learning_rate" json:"learning_rate"`
	Epochs        int      `yaml:"epochs" json:"epochs"`
	BatchSize     int      `yaml:"batch_size" json:"batch_size"`
	Patience      int      `yaml:"patience" json:"patience"`
	Seed          int64    `yaml:"seed" json:"seed"`
}

func DefaultRunParams() RunParams {
	return RunParams{
		TrainFraction: 0.8,
		Lookback:      30,
		LSTMUnits:     32,
		LearningRate:  0.001,
		Epochs:        50,
		BatchSize:     32,
		Patience:      6,
		Seed:          42,
	}
}

// LoadRunFile reads a YAML run file. Keys missing from the file keep their
// DefaultRunParams value. An empty path returns the defaults.
func LoadRunFile(path string) (RunParams, error) {
	params := DefaultRunParams()
	if path == "" {
		return params, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return params, fmt.Errorf("reading run file: %w", err)
	}
	if err := yaml.Unmarshal(content, &params); err != nil {
		return params, fmt.Errorf("parsing run file %s: %w", path, err)
	}
	return params, nil
}
