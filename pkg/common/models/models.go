package models

import (
	"time"

	"github.com/google/uuid"
)

// Event bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // run.requested, run.started, run.completed, run.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventRunRequested = "run.requested"
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// Training runs
type RunRequest struct {
	RawDir        string   `json:"raw_dir,omitempty"`
	Features      []string `json:"features"`
	TrainFraction *float64 `json:"train_fraction,omitempty"`
	Lookback      *int     `json:"lookback,omitempty"`
	LSTMUnits     *int     `json:"lstm_units,omitempty"`
	LearningRate  *float64 `json:"learning_rate,omitempty"`
	Epochs        *int     `json:"epochs,omitempty"`
	BatchSize     *int     `json:"batch_size,omitempty"`
	Patience      *int     `json:"patience,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	Trigger       string   `json:"trigger,omitempty"` // api, schedule, kafka, cli
}

type TrainingRun struct {
	ID           uuid.UUID              `json:"id"`
	Status       string                 `json:"status"`
	Trigger      string                 `json:"trigger,omitempty"`
	RawDir       string                 `json:"raw_dir"`
	Params       map[string]interface{} `json:"params"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	Artifacts    map[string]interface{} `json:"artifacts,omitempty"`
	FailedStage  string                 `json:"failed_stage,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// Forecast serving
type ForecastRequest struct {
	Feature string    `json:"feature"`
	Recent  []float64 `json:"recent"`
	Horizon int       `json:"horizon"`
}

type ForecastResponse struct {
	ID        string        `json:"id"`
	Feature   string        `json:"feature"`
	Values    []float64     `json:"values"`
	RunID     string        `json:"run_id,omitempty"`
	ModelPath string        `json:"model_path"`
	Latency   time.Duration `json:"latency"`
}
