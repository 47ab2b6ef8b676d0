package runs

import (
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	Status       string            `gorm:"column:status;index"`
	Trigger      string            `gorm:"column:run_trigger"`
	RawDir       string            `gorm:"column:raw_dir"`
	Params       datatypes.JSONMap `gorm:"column:params"`
	Metrics      datatypes.JSONMap `gorm:"column:metrics"`
	Artifacts    datatypes.JSONMap `gorm:"column:artifacts"`
	FailedStage  string            `gorm:"column:failed_stage"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	StartedAt    *time.Time        `gorm:"column:started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "training_runs"
}

// RunArtifacts is what GET /runs/{id}/artifacts returns.
type RunArtifacts struct {
	RunID     uuid.UUID              `json:"run_id"`
	Status    string                 `json:"status"`
	Artifacts map[string]interface{} `json:"artifacts"`
	Files     []ingestion.FileRecord `json:"files"`
}
