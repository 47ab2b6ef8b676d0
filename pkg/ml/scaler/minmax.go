// Package scaler implements min-max normalisation of a single feature column.
package scaler

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmpty     = errors.New("cannot fit scaler on empty sequence")
	ErrNotFitted = errors.New("scaler not fitted")
)

// MinMax maps values into [0, 1] using bounds observed on the training data.
// It is immutable once fitted.
type MinMax struct {
	Feature string  `json:"feature"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Fitted  bool    `json:"fitted"`
}

// Fit computes the bounds of values.
func Fit(feature string, values []float64) (MinMax, error) {
	if len(values) == 0 {
		return MinMax{}, fmt.Errorf("%s: %w", feature, ErrEmpty)
	}
	return MinMax{
		Feature: feature,
		Min:     floats.Min(values),
		Max:     floats.Max(values),
		Fitted:  true,
	}, nil
}

// Scale returns max-min, or 0 for a constant training column.
func (s MinMax) Scale() float64 {
	return s.Max - s.Min
}

func (s MinMax) TransformValue(v float64) float64 {
	r := s.Scale()
	if r == 0 {
		return 0
	}
	return (v - s.Min) / r
}

func (s MinMax) InverseValue(v float64) float64 {
	return v*s.Scale() + s.Min
}

// Transform scales values into a new slice. A constant training column maps
// every value to zero.
func (s MinMax) Transform(values []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(values))
	r := s.Scale()
	if r == 0 {
		return out, nil
	}
	copy(out, values)
	floats.AddConst(-s.Min, out)
	floats.Scale(1/r, out)
	return out, nil
}

// Inverse maps scaled values back to the original units.
func (s MinMax) Inverse(scaled []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(scaled))
	copy(out, scaled)
	floats.Scale(s.Scale(), out)
	floats.AddConst(s.Min, out)
	return out, nil
}
