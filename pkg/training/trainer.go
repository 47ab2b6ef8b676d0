// Package training fits a single-feature LSTM forecaster.
//
// A Trainer moves through Initial -> Prepared -> Training -> Finished (or
// Failed). Prepare extracts and scales the feature column and builds lookback
// windows; Fit runs the epoch loop with early stopping and learning-rate
// reduction observing the validation loss.
package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/ml/callbacks"
	"github.com/synaptica-ai/rigcast/pkg/ml/lstm"
	"github.com/synaptica-ai/rigcast/pkg/ml/scaler"
	"github.com/synaptica-ai/rigcast/pkg/ml/window"
)

type State string

const (
	StateInitial  State = "initial"
	StatePrepared State = "prepared"
	StateTraining State = "training"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Result is everything a finished run emits.
type Result struct {
	Feature string
	Scaler  scaler.MinMax
	Model   *ModelArtifact
	History *History
	Stopped bool

	TrainSamples      int
	ValidationSamples int
}

type Trainer struct {
	cfg   Config
	state State

	scaler scaler.MinMax
	fitSet *window.Dataset
	valSet *window.Dataset
	params *lstm.Params
}

func NewTrainer(cfg Config) (*Trainer, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg, state: StateInitial}, nil
}

func (t *Trainer) State() State {
	return t.state
}

func (t *Trainer) Config() Config {
	return t.cfg
}

// Prepare reads the feature column from the training table. A missing or
// non-numeric column is fatal.
func (t *Trainer) Prepare(train *dataset.Table) error {
	if t.state != StateInitial {
		return fmt.Errorf("%w: prepare called in state %s", ErrInvalidState, t.state)
	}
	values, err := train.Column(t.cfg.Feature)
	if err != nil {
		t.state = StateFailed
		return fmt.Errorf("extracting feature: %w", err)
	}
	return t.PrepareSeries(values)
}

// PrepareSeries is Prepare for an already extracted feature sequence.
func (t *Trainer) PrepareSeries(values []float64) error {
	if t.state != StateInitial {
		return fmt.Errorf("%w: prepare called in state %s", ErrInvalidState, t.state)
	}
	if err := t.prepare(values); err != nil {
		t.state = StateFailed
		return err
	}
	t.state = StatePrepared
	return nil
}

func (t *Trainer) prepare(values []float64) error {
	sc, err := scaler.Fit(t.cfg.Feature, values)
	if err != nil {
		return err
	}
	scaled, err := sc.Transform(values)
	if err != nil {
		return err
	}
	ds, err := window.Build(scaled, t.cfg.Lookback)
	if err != nil {
		return fmt.Errorf("%s: %w", t.cfg.Feature, err)
	}
	fitSet, valSet, err := ds.SplitTail(t.cfg.ValidationFraction)
	if err != nil {
		return fmt.Errorf("%s: %w", t.cfg.Feature, err)
	}

	t.scaler = sc
	t.fitSet = fitSet
	t.valSet = valSet
	t.params = lstm.NewParams(t.cfg.Units, 1, rand.New(rand.NewSource(t.cfg.Seed)))

	logger.WithFields(logrus.Fields{
		"feature":    t.cfg.Feature,
		"min":        sc.Min,
		"max":        sc.Max,
		"train":      fitSet.Len(),
		"validation": valSet.Len(),
	}).Info("Prepared training windows")
	return nil
}

// Fit trains until Epochs is reached or early stopping fires. The context is
// checked before every epoch.
func (t *Trainer) Fit(ctx context.Context) (*Result, error) {
	if t.state != StatePrepared {
		return nil, fmt.Errorf("%w: fit called in state %s", ErrInvalidState, t.state)
	}
	t.state = StateTraining

	cfg := t.cfg
	log := logger.WithField("feature", cfg.Feature)
	history := &History{Feature: cfg.Feature}

	params := t.params
	best := params.Clone()
	opt := lstm.NewRMSProp(cfg.LearningRate, len(params.Data))
	ev := lstm.NewEvaluator(params, cfg.Lookback)
	grad := make([]float64, len(params.Data))

	stopper := callbacks.NewEarlyStopping(cfg.Patience)
	stopper.MinDelta = cfg.MinDelta
	plateau := callbacks.NewReduceLROnPlateau(cfg.Patience/2, cfg.LRFactor)
	if cfg.PlateauMinDelta > 0 {
		plateau.MinDelta = cfg.PlateauMinDelta
	}

	fail := func(epoch int, err error) (*Result, error) {
		t.state = StateFailed
		return nil, &TrainingError{Feature: cfg.Feature, Epoch: epoch, History: history, Err: err}
	}

	stopped := false
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return fail(epoch, err)
		}

		m := EpochMetrics{Epoch: epoch, LearningRate: opt.Rate}
		m.Loss = t.runEpoch(ev, params, opt, grad)
		m.RMSE = math.Sqrt(m.Loss)
		m.ValLoss = ev.MSE(params, t.valSet.Windows, t.valSet.Labels)
		m.ValRMSE = math.Sqrt(m.ValLoss)
		history.Epochs = append(history.Epochs, m)

		log.WithFields(logrus.Fields{
			"epoch":         epoch,
			"loss":          m.Loss,
			"val_loss":      m.ValLoss,
			"learning_rate": m.LearningRate,
		}).Info("Epoch finished")

		if !m.finite() {
			log.WithField("epoch", epoch).Error("Loss is not finite")
			return fail(epoch, ErrDiverged)
		}

		stop := stopper.Observe(epoch, m.ValLoss)
		if stopper.Improved(epoch) {
			best = params.Clone()
		}
		reduce := plateau.Observe(epoch, m.ValLoss)

		if reduce == callbacks.ReduceRate {
			next := plateau.Next(opt.Rate)
			log.WithFields(logrus.Fields{
				"epoch":         epoch,
				"learning_rate": next,
			}).Info("Reducing learning rate")
			opt.Rate = next
		}
		if callbacks.Combine(stop, reduce) == callbacks.StopAndRestore {
			bestEpoch, bestLoss := stopper.Best()
			log.WithFields(logrus.Fields{
				"epoch":      epoch,
				"best_epoch": bestEpoch,
				"val_loss":   bestLoss,
			}).Info("Early stopping, restoring best weights")
			params = best
			stopped = true
			break
		}
	}

	bestEpoch, _ := stopper.Best()
	if !stopped {
		if last, ok := history.Last(); ok {
			bestEpoch = last.Epoch
		}
	}

	t.params = params
	t.state = StateFinished
	return &Result{
		Feature: cfg.Feature,
		Scaler:  t.scaler,
		Model: &ModelArtifact{
			Feature: cfg.Feature,
			Architecture: Architecture{
				Kind:     "lstm",
				Units:    cfg.Units,
				Lookback: cfg.Lookback,
				InputDim: 1,
			},
			Params:    params,
			BestEpoch: bestEpoch,
			Restored:  stopped,
			TrainedAt: time.Now().UTC(),
		},
		History:           history,
		Stopped:           stopped,
		TrainSamples:      t.fitSet.Len(),
		ValidationSamples: t.valSet.Len(),
	}, nil
}

// runEpoch makes one ordered pass over the training windows in mini-batches
// and returns the sample-weighted mean of the batch losses.
func (t *Trainer) runEpoch(ev *lstm.Evaluator, params *lstm.Params, opt *lstm.RMSProp, grad []float64) float64 {
	n := t.fitSet.Len()
	var total float64
	for start := 0; start < n; start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > n {
			end = n
		}
		loss := ev.Gradient(params, t.fitSet.Windows[start:end], t.fitSet.Labels[start:end], grad)
		opt.Step(params, grad)
		total += loss * float64(end-start)
	}
	return total / float64(n)
}
