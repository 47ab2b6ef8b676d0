package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&FileRecord{})
}

// RecordScan stores the manifest of one ingestion scan in visitation order.
func (r *Repository) RecordScan(ctx context.Context, runID uuid.UUID, files []FileReport) error {
	if len(files) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]FileRecord, 0, len(files))
	for i, f := range files {
		records = append(records, FileRecord{
			ID:        uuid.New(),
			RunID:     runID,
			Position:  i,
			Name:      f.Name,
			Format:    f.Format,
			Status:    f.Status,
			Unit:      f.Unit,
			Test:      f.Test,
			Rows:      f.Rows,
			Reason:    f.Reason,
			CreatedAt: now,
		})
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *Repository) ListByRun(ctx context.Context, runID uuid.UUID) ([]FileRecord, error) {
	var records []FileRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position asc").
		Find(&records).Error
	return records, err
}
