package training

import (
	"errors"
	"fmt"
)

var (
	ErrDiverged     = errors.New("training diverged")
	ErrInvalidState = errors.New("invalid trainer state")
)

// ConfigError reports a hyperparameter outside its allowed range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TrainingError is returned when the fit loop fails after it has started.
// History holds the epochs completed before the failure.
type TrainingError struct {
	Feature string
	Epoch   int
	History *History
	Err     error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s failed at epoch %d: %v", e.Feature, e.Epoch, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

func IsDiverged(err error) bool {
	return errors.Is(err, ErrDiverged)
}
