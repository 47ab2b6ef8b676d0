package training

import (
	"fmt"
	"math"

	"github.com/synaptica-ai/rigcast/pkg/common/config"
)

const (
	DefaultValidationFraction = 0.2
	DefaultLRFactor           = 0.75
)

// Config holds everything needed to train one feature.
type Config struct {
	Feature      string
	Lookback     int
	Units        int
	LearningRate float64
	Epochs       int
	BatchSize    int
	Patience     int
	Seed         int64

	// ValidationFraction is the trailing share of windows held out for
	// validation. LRFactor multiplies the rate on a plateau.
	ValidationFraction float64
	LRFactor           float64

	// MinDelta applies to early stopping. PlateauMinDelta applies to rate
	// reduction; zero keeps callbacks.DefaultPlateauMinDelta.
	MinDelta        float64
	PlateauMinDelta float64
}

// FromRunParams builds the trainer config for one feature of a run.
func FromRunParams(feature string, p config.RunParams) Config {
	return Config{
		Feature:            feature,
		Lookback:           p.Lookback,
		Units:              p.LSTMUnits,
		LearningRate:       p.LearningRate,
		Epochs:             p.Epochs,
		BatchSize:          p.BatchSize,
		Patience:           p.Patience,
		Seed:               p.Seed,
		ValidationFraction: DefaultValidationFraction,
		LRFactor:           DefaultLRFactor,
	}
}

func (c *Config) applyDefaults() {
	if c.ValidationFraction == 0 {
		c.ValidationFraction = DefaultValidationFraction
	}
	if c.LRFactor == 0 {
		c.LRFactor = DefaultLRFactor
	}
}

// Validate returns a *ConfigError for the first invalid field.
func (c Config) Validate() error {
	positive := func(field string, v int) error {
		if v <= 0 {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", v)}
		}
		return nil
	}
	if c.Feature == "" {
		return &ConfigError{Field: "feature", Reason: "must not be empty"}
	}
	for _, check := range []error{
		positive("lookback", c.Lookback),
		positive("lstm_units", c.Units),
		positive("epochs", c.Epochs),
		positive("batch_size", c.BatchSize),
		positive("patience", c.Patience),
	} {
		if check != nil {
			return check
		}
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		return &ConfigError{Field: "learning_rate", Reason: fmt.Sprintf("must be a positive number, got %v", c.LearningRate)}
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return &ConfigError{Field: "validation_fraction", Reason: fmt.Sprintf("must be in (0, 1), got %v", c.ValidationFraction)}
	}
	if c.LRFactor < 0 || c.LRFactor >= 1 {
		return &ConfigError{Field: "lr_factor", Reason: fmt.Sprintf("must be in (0, 1), got %v", c.LRFactor)}
	}
	if c.MinDelta < 0 {
		return &ConfigError{Field: "min_delta", Reason: "must not be negative"}
	}
	return nil
}
