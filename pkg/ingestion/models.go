package ingestion

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusSkipped  = "skipped"
)

// FileReport is the outcome of visiting one directory entry.
type FileReport struct {
	Name   string `json:"name"`
	Format string `json:"format,omitempty"`
	Status string `json:"status"`
	Unit   int    `json:"unit,omitempty"`
	Test   int    `json:"test,omitempty"`
	Rows   int    `json:"rows"`
	Reason string `json:"reason,omitempty"`
}

// FileRecord is the persisted manifest entry for a file seen during a run.
type FileRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;index;column:run_id" json:"run_id"`
	Position  int       `gorm:"column:position" json:"position"`
	Name      string    `gorm:"column:name" json:"name"`
	Format    string    `gorm:"column:format" json:"format,omitempty"`
	Status    string    `gorm:"column:status" json:"status"`
	Unit      int       `gorm:"column:unit" json:"unit,omitempty"`
	Test      int       `gorm:"column:test" json:"test,omitempty"`
	Rows      int       `gorm:"column:rows" json:"rows"`
	Reason    string    `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (FileRecord) TableName() string {
	return "ingested_files"
}
