package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("training run not found")

// Store persists run rows. Repository is the Postgres implementation.
type Store interface {
	Create(ctx context.Context, run *RunModel) error
	Get(ctx context.Context, id uuid.UUID) (*RunModel, error)
	List(ctx context.Context, limit int) ([]RunModel, error)
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	Complete(ctx context.Context, id uuid.UUID, metrics, artifacts map[string]interface{}, completedAt time.Time) error
	Fail(ctx context.Context, id uuid.UUID, stage, message string, metrics map[string]interface{}, completedAt time.Time) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{})
}

func (r *Repository) Create(ctx context.Context, run *RunModel) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":     StatusRunning,
		"started_at": startedAt,
	})
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID, metrics, artifacts map[string]interface{}, completedAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":       StatusCompleted,
		"metrics":      datatypes.JSONMap(metrics),
		"artifacts":    datatypes.JSONMap(artifacts),
		"completed_at": completedAt,
	})
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, stage, message string, metrics map[string]interface{}, completedAt time.Time) error {
	updates := map[string]interface{}{
		"status":        StatusFailed,
		"failed_stage":  stage,
		"error_message": message,
		"completed_at":  completedAt,
	}
	if metrics != nil {
		updates["metrics"] = datatypes.JSONMap(metrics)
	}
	return r.update(ctx, id, updates)
}

func (r *Repository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*RunModel, error) {
	var run RunModel
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) List(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunModel
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs)
	return runs, result.Error
}
