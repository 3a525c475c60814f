package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/logging"
	"github.com/example/ai-detect/internal/repository"
)

const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// ErrHistoryDisabled is returned by history lookups when no database is configured.
var ErrHistoryDisabled = errors.New("classification history is not configured")

// ClassificationRepository defines the persistence operations needed by the use case.
type ClassificationRepository interface {
	SaveLog(ctx context.Context, log *repository.ClassificationLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.ClassificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.Aggregation, error)
}

// ClassificationUseCase validates requests, runs the configured strategy and
// records the outcome.
type ClassificationUseCase struct {
	classifier detection.Classifier
	strategy   string
	repo       ClassificationRepository
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewClassificationUseCase constructs the use case. repo and recorder may be nil.
func NewClassificationUseCase(classifier detection.Classifier, strategy string, repo ClassificationRepository, recorder Recorder, logger *zap.Logger) *ClassificationUseCase {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ClassificationUseCase{
		classifier: classifier,
		strategy:   strategy,
		repo:       repo,
		recorder:   recorder,
		logger:     logger.Named("classification_usecase"),
		now:        time.Now,
	}
}

// Classify runs one classification. It always returns a result: on failure the
// result carries only the error message and the returned error is an
// OperationError wrapping the typed pipeline error.
func (uc *ClassificationUseCase) Classify(ctx context.Context, imageURL string) (string, detection.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID)
	started := uc.now()

	imageURL = strings.TrimSpace(imageURL)
	result, err := uc.run(ctx, imageURL)
	elapsed := uc.now().Sub(started)

	outcome := string(result.Label)
	if err != nil {
		outcome = "error"
		result = detection.ErrorResult(err)
		err = logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Warn("classification failed", zap.String("url", imageURL), zap.Error(err))
	} else {
		opLogger.Info("classification completed",
			zap.String("label", string(result.Label)),
			zap.Float64("confidence", result.Confidence),
			zap.Duration("latency", elapsed),
		)
	}
	uc.recorder.ObserveClassification(uc.strategy, outcome, elapsed)
	uc.persist(ctx, requestID, imageURL, result, elapsed, opLogger)

	return requestID, result, err
}

func (uc *ClassificationUseCase) run(ctx context.Context, imageURL string) (detection.Result, error) {
	if err := validateImageURL(imageURL); err != nil {
		return detection.Result{}, err
	}
	return uc.classifier.Classify(ctx, imageURL)
}

func (uc *ClassificationUseCase) persist(ctx context.Context, requestID, imageURL string, result detection.Result, elapsed time.Duration, opLogger *zap.Logger) {
	if uc.repo == nil {
		return
	}
	log := &repository.ClassificationLog{
		RequestID:    requestID,
		ImageURL:     imageURL,
		Strategy:     uc.strategy,
		Label:        string(result.Label),
		Confidence:   result.Confidence,
		Source:       result.Source,
		Details:      result.Diagnostics,
		ErrorMessage: result.Error,
		LatencyMs:    float64(elapsed) / float64(time.Millisecond),
		CreatedAt:    uc.now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist classification log", zap.Error(err))
	}
}

func validateImageURL(raw string) error {
	if raw == "" {
		return detection.InvalidInput("imageUrl required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return detection.InvalidInput("imageUrl is not a valid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return detection.InvalidInput("imageUrl must use http or https")
	}
	if parsed.Host == "" {
		return detection.InvalidInput("imageUrl has no host")
	}
	return nil
}

// GetResult loads a past classification by request id.
func (uc *ClassificationUseCase) GetResult(ctx context.Context, requestID string) (*repository.ClassificationLog, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}

// Health describes the configured strategy without touching the network.
func (uc *ClassificationUseCase) Health() detection.Health {
	if reporter, ok := uc.classifier.(detection.HealthReporter); ok {
		return reporter.Health()
	}
	return detection.Health{Status: "healthy", Strategy: uc.strategy}
}

// Strategy returns the configured strategy name.
func (uc *ClassificationUseCase) Strategy() string {
	return uc.strategy
}
