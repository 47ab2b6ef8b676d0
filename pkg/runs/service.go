// Package runs records pipeline runs and executes them in the background.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/kafka"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"github.com/synaptica-ai/rigcast/pkg/observability/metrics"
	"github.com/synaptica-ai/rigcast/pkg/pipeline"
	"github.com/synaptica-ai/rigcast/pkg/training"
	"gorm.io/datatypes"
)

const eventSource = "training-service"

// Pipeline runs every stage of a request. *pipeline.Runner implements it.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// ManifestStore records per-file ingestion outcomes.
type ManifestStore interface {
	RecordScan(ctx context.Context, runID uuid.UUID, files []ingestion.FileReport) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]ingestion.FileRecord, error)
}

// ValidationError wraps a request rejected before a run row is created.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var ErrRawDirOutsideRoot = errors.New("raw_dir must be inside the raw data root")

// resolveRawDir places a requested raw_dir under root. Relative paths are
// joined to root; absolute ones must already lie inside it.
func resolveRawDir(root, requested string) (string, error) {
	if requested == "" {
		return root, nil
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dir := filepath.Clean(requested)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrRawDirOutsideRoot, requested)
	}
	return dir, nil
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Options struct {
	Defaults   config.RunParams
	RawDir     string
	MaxWorkers int
}

type Service struct {
	store     Store
	manifests ManifestStore
	pipeline  Pipeline
	events    kafka.Publisher
	defaults  config.RunParams
	rawDir    string
	workerSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the run service. manifests and events may be nil.
func NewService(store Store, manifests ManifestStore, p Pipeline, events kafka.Publisher, opts Options) *Service {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     store,
		manifests: manifests,
		pipeline:  p,
		events:    events,
		defaults:  opts.Defaults,
		rawDir:    opts.RawDir,
		workerSem: make(chan struct{}, opts.MaxWorkers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ResolveParams overlays the fields set in req on defaults.
func ResolveParams(defaults config.RunParams, req models.RunRequest) config.RunParams {
	p := defaults
	if len(req.Features) > 0 {
		p.Features = append([]string(nil), req.Features...)
	}
	if req.TrainFraction != nil {
		p.TrainFraction = *req.TrainFraction
	}
	if req.Lookback != nil {
		p.Lookback = *req.Lookback
	}
	if req.LSTMUnits != nil {
		p.LSTMUnits = *req.LSTMUnits
	}
	if req.LearningRate != nil {
		p.LearningRate = *req.LearningRate
	}
	if req.Epochs != nil {
		p.Epochs = *req.Epochs
	}
	if req.BatchSize != nil {
		p.BatchSize = *req.BatchSize
	}
	if req.Patience != nil {
		p.Patience = *req.Patience
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	return p
}

// Submit validates the request, stores a queued run and starts it in the
// background.
func (s *Service) Submit(ctx context.Context, req models.RunRequest) (models.TrainingRun, error) {
	params := ResolveParams(s.defaults, req)
	if err := pipeline.Validate(params); err != nil {
		return models.TrainingRun{}, &ValidationError{Err: err}
	}
	rawDir, err := resolveRawDir(s.rawDir, req.RawDir)
	if err != nil {
		return models.TrainingRun{}, &ValidationError{Err: err}
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "api"
	}

	now := time.Now().UTC()
	run := &RunModel{
		ID:        uuid.New(),
		Status:    StatusQueued,
		Trigger:   trigger,
		RawDir:    rawDir,
		Params:    datatypes.JSONMap(toMap(params)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, run); err != nil {
		return models.TrainingRun{}, err
	}

	out := toDomain(run)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(out.ID, rawDir, params)
	}()
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return models.TrainingRun{}, err
	}
	return toDomain(run), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	list, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.TrainingRun, 0, len(list))
	for i := range list {
		results = append(results, toDomain(&list[i]))
	}
	return results, nil
}

func (s *Service) Artifacts(ctx context.Context, id uuid.UUID) (RunArtifacts, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return RunArtifacts{}, err
	}
	out := RunArtifacts{RunID: run.ID, Status: run.Status, Artifacts: map[string]interface{}{}}
	if run.Artifacts != nil {
		out.Artifacts = map[string]interface{}(run.Artifacts)
	}
	if s.manifests != nil {
		files, err := s.manifests.ListByRun(ctx, id)
		if err != nil {
			return RunArtifacts{}, err
		}
		out.Files = files
	}
	return out, nil
}

// HandleEvent enqueues a run for every run.requested event. Other event
// types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventRunRequested {
		return nil
	}
	var req models.RunRequest
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding run request %s: %w", event.ID, err)
	}
	if req.Trigger == "" {
		req.Trigger = "kafka"
	}
	run, err := s.Submit(ctx, req)
	if IsValidationError(err) {
		// redelivery cannot fix a bad request
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("Dropping invalid run request")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Log.WithFields(logrus.Fields{"event_id": event.ID, "run_id": run.ID}).Info("Run enqueued from event")
	return nil
}

// Wait blocks until every submitted run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight runs at their next epoch or file boundary and waits
// for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) execute(id uuid.UUID, rawDir string, params config.RunParams) {
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()

	ctx := s.ctx
	// bookkeeping must still land when the run itself is cancelled
	dbCtx := context.WithoutCancel(ctx)
	log := logger.WithField("run_id", id.String())
	metrics.RunStarted()

	start := time.Now().UTC()
	if err := s.store.MarkRunning(dbCtx, id, start); err != nil {
		log.WithError(err).Error("Failed to mark run running")
	}
	s.publish(ctx, models.EventRunStarted, map[string]interface{}{
		"run_id":   id.String(),
		"raw_dir":  rawDir,
		"features": params.Features,
	})

	report, err := s.pipeline.Run(ctx, pipeline.Request{RunID: id.String(), RawDir: rawDir, Params: params})
	if report != nil && s.manifests != nil && len(report.Files) > 0 {
		if mErr := s.manifests.RecordScan(dbCtx, id, report.Files); mErr != nil {
			log.WithError(mErr).Error("Failed to record file manifest")
		}
	}
	completed := time.Now().UTC()

	if err != nil {
		metrics.RunFinished(false)
		stage, _ := pipeline.StageOf(err)
		var partial map[string]interface{}
		var te *training.TrainingError
		if errors.As(err, &te) && te.History.Len() > 0 {
			partial = map[string]interface{}{te.Feature: te.History.Summary(-1)}
		}
		log.WithError(err).WithField("stage", stage).Error("Run failed")
		if uErr := s.store.Fail(dbCtx, id, string(stage), err.Error(), partial, completed); uErr != nil {
			log.WithError(uErr).Error("Failed to mark run failed")
		}
		s.publish(ctx, models.EventRunFailed, map[string]interface{}{
			"run_id": id.String(),
			"stage":  string(stage),
			"error":  err.Error(),
		})
		return
	}

	runMetrics, artifacts := summarize(report)
	if uErr := s.store.Complete(dbCtx, id, runMetrics, artifacts, completed); uErr != nil {
		log.WithError(uErr).Error("Failed to mark run complete")
	}
	metrics.RunFinished(true)
	log.WithFields(logrus.Fields{
		"rows":     report.Rows,
		"features": len(report.Features),
		"duration": completed.Sub(start).String(),
	}).Info("Run completed")
	s.publish(ctx, models.EventRunCompleted, map[string]interface{}{
		"run_id":    id.String(),
		"metrics":   runMetrics,
		"artifacts": artifacts,
	})
}

// publish never fails a run; lost events are only logged.
func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.events.PublishEvent(pubCtx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Run event not published")
	}
}

func summarize(report *pipeline.Report) (map[string]interface{}, map[string]interface{}) {
	runMetrics := map[string]interface{}{
		"rows":       report.Rows,
		"train_rows": report.TrainRows,
		"test_rows":  report.TestRows,
		"files":      len(report.Files),
	}
	artifacts := map[string]interface{}{}
	for _, fr := range report.Features {
		summary := fr.History.Summary(fr.BestEpoch)
		summary["stopped_early"] = fr.Stopped
		summary["train_samples"] = fr.TrainSamples
		summary["validation_samples"] = fr.ValidationSamples
		runMetrics[fr.Feature] = summary
		artifacts[fr.Feature] = toMap(fr.Artifacts)
	}
	return runMetrics, artifacts
}

func toMap(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	payload, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(payload, &out)
	return out
}

func toDomain(run *RunModel) models.TrainingRun {
	result := models.TrainingRun{
		ID:           run.ID,
		Status:       run.Status,
		Trigger:      run.Trigger,
		RawDir:       run.RawDir,
		FailedStage:  run.FailedStage,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
	if run.Params != nil {
		result.Params = map[string]interface{}(run.Params)
	}
	if run.Metrics != nil {
		result.Metrics = map[string]interface{}(run.Metrics)
	}
	if run.Artifacts != nil {
		result.Artifacts = map[string]interface{}(run.Artifacts)
	}
	return result
}
