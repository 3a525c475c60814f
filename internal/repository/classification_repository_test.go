package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/ai-detect/internal/logging"
	"github.com/example/ai-detect/internal/retry"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func newMockRepository(t *testing.T) (*ClassificationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	repo := NewClassificationRepository(gdb, zap.NewNop())
	repo.policy = retry.Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return repo, mock
}

func TestSaveLogInsertsRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`INSERT INTO "classification_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	log := &ClassificationLog{RequestID: "req-1", ImageURL: "https://x/img.png", Label: "ai", Confidence: 0.9, CreatedAt: time.Now().UTC()}
	if err := repo.SaveLog(context.Background(), log); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}
	if log.ID != 7 {
		t.Fatalf("expected generated id 7, got %d", log.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveLogRetriesTransientErrors(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`INSERT INTO "classification_logs"`).WillReturnError(transientTestError{})
	mock.ExpectQuery(`INSERT INTO "classification_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	if err := repo.SaveLog(context.Background(), &ClassificationLog{RequestID: "req-2"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveLogReturnsOperationError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`INSERT INTO "classification_logs"`).WillReturnError(errors.New("duplicate key"))

	err := repo.SaveLog(context.Background(), &ClassificationLog{RequestID: "req-3"})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "repository.save_log" || opErr.RequestID != "req-3" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

func TestFindByRequestID(t *testing.T) {
	repo, mock := newMockRepository(t)
	rows := sqlmock.NewRows([]string{"id", "request_id", "image_url", "label", "confidence", "source"}).
		AddRow(1, "req-4", "https://x/a.jpg", "real", 0.8, "custom_model")
	mock.ExpectQuery(`SELECT \* FROM "classification_logs"`).WillReturnRows(rows)

	log, err := repo.FindByRequestID(context.Background(), "req-4")
	if err != nil {
		t.Fatalf("FindByRequestID() error = %v", err)
	}
	if log.Label != "real" || log.Source != "custom_model" || log.Confidence != 0.8 {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestFindByRequestIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT \* FROM "classification_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByRequestID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregateMetrics(t *testing.T) {
	repo, mock := newMockRepository(t)
	rows := sqlmock.NewRows([]string{"total_count", "error_count", "ai_count", "real_count", "average_confidence", "average_latency_ms"}).
		AddRow(10, 2, 5, 3, 0.75, 120.5)
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_count`).WillReturnRows(rows)

	agg, err := repo.AggregateMetrics(context.Background())
	if err != nil {
		t.Fatalf("AggregateMetrics() error = %v", err)
	}
	if agg.TotalCount != 10 || agg.ErrorCount != 2 || agg.AICount != 5 || agg.RealCount != 3 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if agg.AverageConfidence != 0.75 || agg.AverageLatencyMs != 120.5 {
		t.Fatalf("unexpected averages: %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
