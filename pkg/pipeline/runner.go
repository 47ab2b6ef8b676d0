// Package pipeline chains the batch stages of a run: ingest raw files, persist
// the combined table, split it chronologically and train one model per
// requested feature. Stages run strictly in sequence.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"github.com/synaptica-ai/rigcast/pkg/observability/metrics"
	"github.com/synaptica-ai/rigcast/pkg/storage"
	"github.com/synaptica-ai/rigcast/pkg/training"
)

type Stage string

const (
	StageValidate Stage = "validate"
	StageIngest   Stage = "ingest"
	StagePersist  Stage = "persist"
	StageSplit    Stage = "split"
	StageTrain    Stage = "train"
)

var ErrNoFeatures = errors.New("no features requested")

// StageError names the stage, and for training the feature, that failed.
type StageError struct {
	Stage   Stage
	Feature string
	Err     error
}

func (e *StageError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Feature, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

type Request struct {
	RunID  string
	RawDir string
	Params config.RunParams
}

type FeatureReport struct {
	Feature           string
	Artifacts         storage.ArtifactSet
	History           *training.History
	BestEpoch         int
	Stopped           bool
	TrainSamples      int
	ValidationSamples int
}

type Report struct {
	RunID     string
	Files     []ingestion.FileReport
	Columns   []string
	Rows      int
	TrainRows int
	TestRows  int
	Features  []FeatureReport
}

type Runner struct {
	ingestor *ingestion.Ingestor
	store    *storage.ArtifactStore
	registry storage.Registry
}

// NewRunner wires the stages. registry may be nil.
func NewRunner(ingestor *ingestion.Ingestor, store *storage.ArtifactStore, registry storage.Registry) *Runner {
	return &Runner{ingestor: ingestor, store: store, registry: registry}
}

func (r *Runner) Store() *storage.ArtifactStore {
	return r.store
}

// Validate checks run parameters before any file is touched.
func Validate(p config.RunParams) error {
	if len(p.Features) == 0 {
		return &StageError{Stage: StageValidate, Err: ErrNoFeatures}
	}
	if p.TrainFraction <= 0 || p.TrainFraction >= 1 {
		return &StageError{Stage: StageValidate, Err: fmt.Errorf("%w: got %v", dataset.ErrInvalidFraction, p.TrainFraction)}
	}
	for _, feature := range p.Features {
		if _, err := training.NewTrainer(training.FromRunParams(feature, p)); err != nil {
			return &StageError{Stage: StageValidate, Feature: feature, Err: err}
		}
	}
	return nil
}

// Run executes every stage. On failure the returned report holds whatever
// the completed stages produced.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{RunID: req.RunID}
	if err := Validate(req.Params); err != nil {
		return report, err
	}

	res, err := r.Ingest(ctx, req.RawDir)
	if res != nil {
		report.Files = res.Files
	}
	if err != nil {
		return report, err
	}
	report.Columns = res.Columns()
	report.Rows = res.Table.Len()

	train, test, err := r.Split(req.Params.TrainFraction)
	if err != nil {
		return report, err
	}
	report.TrainRows = train.Len()
	report.TestRows = test.Len()

	features, err := r.Train(ctx, req.RunID, req.Params)
	report.Features = features
	return report, err
}

// Ingest scans rawDir and writes the interim table and column list.
func (r *Runner) Ingest(ctx context.Context, rawDir string) (*ingestion.Result, error) {
	res, err := r.ingestor.Ingest(ctx, rawDir)
	if res != nil {
		metrics.ObserveIngestion(
			res.Count(ingestion.StatusAccepted),
			res.Count(ingestion.StatusRejected),
			res.Count(ingestion.StatusSkipped),
			res.Table.Len(),
		)
	}
	if err != nil {
		return res, &StageError{Stage: StageIngest, Err: err}
	}
	if _, err := r.store.WriteInterim(res.Table); err != nil {
		return res, &StageError{Stage: StagePersist, Err: err}
	}
	return res, nil
}

// Split reads the interim table back and writes train.csv and test.csv.
func (r *Runner) Split(trainFraction float64) (train, test *dataset.Table, err error) {
	combined, err := r.store.ReadInterim()
	if err != nil {
		return nil, nil, &StageError{Stage: StageSplit, Err: err}
	}
	train, test, err = dataset.Split(combined, trainFraction)
	if err != nil {
		return nil, nil, &StageError{Stage: StageSplit, Err: err}
	}
	if _, _, err := r.store.WriteSplit(train, test); err != nil {
		return nil, nil, &StageError{Stage: StagePersist, Err: err}
	}
	logger.Stage(string(StageSplit)).WithFields(logrus.Fields{
		"train_fraction": trainFraction,
		"train_rows":     train.Len(),
		"test_rows":      test.Len(),
	}).Info("Split combined table")
	return train, test, nil
}

// Train fits one model per feature on train.csv and saves its artifacts.
// The first failing feature stops the stage.
func (r *Runner) Train(ctx context.Context, runID string, params config.RunParams) ([]FeatureReport, error) {
	if len(params.Features) == 0 {
		return nil, &StageError{Stage: StageTrain, Err: ErrNoFeatures}
	}
	train, err := r.store.ReadTrain()
	if err != nil {
		return nil, &StageError{Stage: StageTrain, Err: err}
	}

	var reports []FeatureReport
	for _, feature := range params.Features {
		if err := ctx.Err(); err != nil {
			return reports, &StageError{Stage: StageTrain, Feature: feature, Err: err}
		}
		fr, err := r.trainFeature(ctx, runID, feature, params, train)
		if err != nil {
			return reports, err
		}
		reports = append(reports, *fr)
	}
	return reports, nil
}

func (r *Runner) trainFeature(ctx context.Context, runID, feature string, params config.RunParams, train *dataset.Table) (*FeatureReport, error) {
	log := logger.Stage(string(StageTrain)).WithFields(logrus.Fields{"run_id": runID, "feature": feature})
	log.Info("Training feature")

	trainer, err := training.NewTrainer(training.FromRunParams(feature, params))
	if err != nil {
		return nil, &StageError{Stage: StageTrain, Feature: feature, Err: err}
	}
	if err := trainer.Prepare(train); err != nil {
		return nil, &StageError{Stage: StageTrain, Feature: feature, Err: err}
	}
	res, err := trainer.Fit(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageTrain, Feature: feature, Err: err}
	}

	if last, ok := res.History.Last(); ok {
		metrics.ObserveTraining(last.ValLoss, res.History.Len())
	}

	set, err := r.store.SaveResult(runID, res)
	if err != nil {
		return nil, &StageError{Stage: StagePersist, Feature: feature, Err: err}
	}
	if r.registry != nil {
		if err := r.registry.Publish(ctx, set); err != nil {
			log.WithError(err).Warn("Artifact registry not updated")
		}
	}

	log.WithFields(logrus.Fields{
		"epochs":     res.History.Len(),
		"best_epoch": res.Model.BestEpoch,
		"stopped":    res.Stopped,
	}).Info("Feature trained")

	return &FeatureReport{
		Feature:           feature,
		Artifacts:         set,
		History:           res.History,
		BestEpoch:         res.Model.BestEpoch,
		Stopped:           res.Stopped,
		TrainSamples:      res.TrainSamples,
		ValidationSamples: res.ValidationSamples,
	}, nil
}
