package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ai-detect/internal/retry"
)

// ErrNotFound is returned when no classification matches the request id.
var ErrNotFound = errors.New("classification not found")

// ClassificationLog is one persisted classification outcome.
type ClassificationLog struct {
	ID           uint      `gorm:"primaryKey"`
	RequestID    string    `gorm:"column:request_id;uniqueIndex;size:64"`
	ImageURL     string    `gorm:"column:image_url;type:text"`
	Strategy     string    `gorm:"column:strategy;size:16"`
	Label        string    `gorm:"column:label;size:16"`
	Confidence   float64   `gorm:"column:confidence"`
	Source       string    `gorm:"column:source;size:32"`
	Details      string    `gorm:"column:details;type:text"`
	ErrorMessage string    `gorm:"column:error_message;type:text"`
	LatencyMs    float64   `gorm:"column:latency_ms"`
	CreatedAt    time.Time `gorm:"column:created_at;index"`
}

func (ClassificationLog) TableName() string {
	return "classification_logs"
}

// Aggregation is the raw roll-up over every stored classification.
type Aggregation struct {
	TotalCount        int64   `gorm:"column:total_count"`
	ErrorCount        int64   `gorm:"column:error_count"`
	AICount           int64   `gorm:"column:ai_count"`
	RealCount         int64   `gorm:"column:real_count"`
	AverageConfidence float64 `gorm:"column:average_confidence"`
	AverageLatencyMs  float64 `gorm:"column:average_latency_ms"`
}

// ClassificationRepository stores classification history in Postgres.
type ClassificationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewClassificationRepository creates a repository with the default retry policy.
func NewClassificationRepository(db *gorm.DB, logger *zap.Logger) *ClassificationRepository {
	return &ClassificationRepository{
		db:     db,
		logger: logger.Named("classification_repository"),
		policy: retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (r *ClassificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ClassificationLog{})
}

// SaveLog persists a classification, retrying transient failures.
func (r *ClassificationRepository) SaveLog(ctx context.Context, log *ClassificationLog) error {
	return retry.Do(ctx, r.policy, r.logger, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID loads a single classification.
func (r *ClassificationRepository) FindByRequestID(ctx context.Context, requestID string) (*ClassificationLog, error) {
	var log ClassificationLog
	err := r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics rolls up totals, label counts and averages.
func (r *ClassificationRepository) AggregateMetrics(ctx context.Context) (*Aggregation, error) {
	var agg Aggregation
	err := r.db.WithContext(ctx).
		Model(&ClassificationLog{}).
		Select(`COUNT(*) AS total_count,
			COALESCE(SUM(CASE WHEN error_message <> '' THEN 1 ELSE 0 END), 0) AS error_count,
			COALESCE(SUM(CASE WHEN label = 'ai' THEN 1 ELSE 0 END), 0) AS ai_count,
			COALESCE(SUM(CASE WHEN label = 'real' THEN 1 ELSE 0 END), 0) AS real_count,
			COALESCE(AVG(CASE WHEN error_message = '' THEN confidence END), 0) AS average_confidence,
			COALESCE(AVG(latency_ms), 0) AS average_latency_ms`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
