// Package callbacks holds epoch-end observers of the validation loss.
//
// Each observer keeps its own counter and is fed the same loss stream once per
// epoch. Their decisions are combined by the trainer: a stop outranks a rate
// reduction, which outranks continuing.
package callbacks

import "math"

// DefaultPlateauMinDelta is the smallest drop ReduceLROnPlateau counts as an
// improvement. EarlyStopping defaults to zero.
const DefaultPlateauMinDelta = 1e-4

type Decision int

const (
	Continue Decision = iota
	ReduceRate
	StopAndRestore
)

func (d Decision) String() string {
	switch d {
	case ReduceRate:
		return "reduce-rate"
	case StopAndRestore:
		return "stop-and-restore"
	}
	return "continue"
}

// Observer sees the monitored value at the end of every epoch.
type Observer interface {
	Observe(epoch int, value float64) Decision
}

// Combine returns the strongest of the given decisions.
func Combine(decisions ...Decision) Decision {
	out := Continue
	for _, d := range decisions {
		if d > out {
			out = d
		}
	}
	return out
}

// improved reports whether current beats best by more than minDelta. NaN
// never improves.
func improved(current, best, minDelta float64) bool {
	return current < best-minDelta
}

// EarlyStopping asks to stop once the value has failed to improve for
// Patience consecutive epochs. BestEpoch names the epoch whose parameters
// should be restored.
type EarlyStopping struct {
	Patience int
	MinDelta float64

	best      float64
	bestEpoch int
	wait      int
	started   bool
	stopped   bool
}

func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience}
}

func (e *EarlyStopping) Observe(epoch int, value float64) Decision {
	if !e.started {
		e.started = true
		e.best = math.Inf(1)
		e.bestEpoch = -1
	}
	e.wait++
	if improved(value, e.best, e.MinDelta) {
		e.best = value
		e.bestEpoch = epoch
		e.wait = 0
		return Continue
	}
	if e.wait >= e.Patience && epoch > 0 {
		e.stopped = true
		return StopAndRestore
	}
	return Continue
}

// Improved reports whether the last observed value became the new best.
func (e *EarlyStopping) Improved(epoch int) bool {
	return e.started && e.bestEpoch == epoch
}

func (e *EarlyStopping) Best() (epoch int, value float64) {
	return e.bestEpoch, e.best
}

func (e *EarlyStopping) Stopped() bool {
	return e.stopped
}

// ReduceLROnPlateau asks for a smaller learning rate once the value has
// failed to improve for Patience consecutive epochs, then starts counting
// again. It never stops training.
type ReduceLROnPlateau struct {
	Patience int
	Factor   float64
	MinDelta float64
	MinRate  float64

	best    float64
	wait    int
	started bool
}

func NewReduceLROnPlateau(patience int, factor float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{Patience: patience, Factor: factor, MinDelta: DefaultPlateauMinDelta}
}

func (r *ReduceLROnPlateau) Observe(_ int, value float64) Decision {
	if !r.started {
		r.started = true
		r.best = math.Inf(1)
	}
	if improved(value, r.best, r.MinDelta) {
		r.best = value
		r.wait = 0
		return Continue
	}
	r.wait++
	if r.wait >= r.Patience {
		r.wait = 0
		return ReduceRate
	}
	return Continue
}

// Next returns the reduced rate, floored at MinRate.
func (r *ReduceLROnPlateau) Next(rate float64) float64 {
	next := rate * r.Factor
	if next < r.MinRate {
		return r.MinRate
	}
	return next
}
