package training

import (
	"fmt"
	"time"

	"github.com/synaptica-ai/rigcast/pkg/ml/lstm"
)

// Architecture describes the network shape: one LSTM layer over
// (Lookback, InputDim) windows followed by a single-output dense layer.
type Architecture struct {
	Kind     string `json:"kind"`
	Units    int    `json:"lstm_units"`
	Lookback int    `json:"lookback"`
	InputDim int    `json:"input_dim"`
}

// ModelArtifact is the trained model for one feature. It is not modified
// after Fit returns it.
type ModelArtifact struct {
	Feature      string       `json:"feature"`
	Architecture Architecture `json:"architecture"`
	Params       *lstm.Params `json:"params"`
	BestEpoch    int          `json:"best_epoch"`
	Restored     bool         `json:"restored_best"`
	TrainedAt    time.Time    `json:"trained_at"`
}

func (m *ModelArtifact) Validate() error {
	if m.Params == nil {
		return fmt.Errorf("model %s has no parameters", m.Feature)
	}
	if err := m.Params.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", m.Feature, err)
	}
	if m.Params.Units != m.Architecture.Units || m.Architecture.Lookback <= 0 {
		return fmt.Errorf("model %s: parameters do not match architecture", m.Feature)
	}
	return nil
}

// Predict returns the scaled next value for one scaled window.
func (m *ModelArtifact) Predict(window []float64) (float64, error) {
	if len(window) != m.Architecture.Lookback*m.Architecture.InputDim {
		return 0, fmt.Errorf("window has %d values, model expects %d", len(window), m.Architecture.Lookback)
	}
	return m.Params.Predict(window), nil
}
