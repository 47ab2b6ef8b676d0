package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ForecastLog is the persistence model for served forecasts.
type ForecastLog struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	Feature   string            `gorm:"column:feature;index"`
	RunID     string            `gorm:"column:run_id"`
	ModelPath string            `gorm:"column:model_path"`
	Horizon   int               `gorm:"column:horizon"`
	Request   datatypes.JSONMap `gorm:"column:request"`
	Response  datatypes.JSONMap `gorm:"column:response"`
	LatencyMs float64           `gorm:"column:latency_ms"`
	CreatedAt time.Time         `gorm:"column:created_at"`
}

// TableName overrides gorm naming.
func (ForecastLog) TableName() string {
	return "forecast_logs"
}

// Repository handles forecast log queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ForecastLog{})
}

func (r *Repository) RecordForecast(ctx context.Context, req models.ForecastRequest, resp models.ForecastResponse) error {
	id, err := uuid.Parse(resp.ID)
	if err != nil {
		id = uuid.New()
	}
	log := ForecastLog{
		ID:        id,
		Feature:   resp.Feature,
		RunID:     resp.RunID,
		ModelPath: resp.ModelPath,
		Horizon:   len(resp.Values),
		Request: datatypes.JSONMap{
			"recent":  req.Recent,
			"horizon": req.Horizon,
		},
		Response: datatypes.JSONMap{
			"values": resp.Values,
		},
		LatencyMs: float64(resp.Latency.Microseconds()) / 1000.0,
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// Recent returns the most recent forecast logs up to limit, optionally
// filtered by feature.
func (r *Repository) Recent(ctx context.Context, feature string, limit int) ([]ForecastLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if feature != "" {
		q = q.Where("feature = ?", feature)
	}
	var logs []ForecastLog
	err := q.Find(&logs).Error
	return logs, err
}
