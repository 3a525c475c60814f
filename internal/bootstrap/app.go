// Package bootstrap assembles the service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/ai-detect/internal/auth"
	"github.com/example/ai-detect/internal/config"
	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/grpcapi"
	"github.com/example/ai-detect/internal/handlers"
	"github.com/example/ai-detect/internal/hfclient"
	"github.com/example/ai-detect/internal/imageprocessor"
	"github.com/example/ai-detect/internal/metrics"
	"github.com/example/ai-detect/internal/model"
	"github.com/example/ai-detect/internal/repository"
	"github.com/example/ai-detect/internal/usecase"
)

// App holds the wired components for one process.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	UseCase *usecase.ClassificationUseCase

	warmup  func(ctx context.Context)
	closers []func() error
}

// New wires the configured strategy and its optional Redis and Postgres
// backends. Connection failures of configured backends are returned as errors.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	var (
		classifier detection.Classifier
		err        error
	)
	switch cfg.Strategy {
	case usecase.StrategyLocal:
		classifier, err = app.buildLocal()
	case usecase.StrategyRemote:
		classifier, err = app.buildRemote(ctx)
	default:
		err = &detection.ConfigError{Key: "AIDETECT_STRATEGY", Reason: fmt.Sprintf("unknown strategy %q", cfg.Strategy)}
	}
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var repo usecase.ClassificationRepository
	if cfg.Database.DSN != "" {
		r, err := app.initRepository(ctx)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		repo = r
	}

	app.UseCase = usecase.NewClassificationUseCase(classifier, cfg.Strategy, repo, app.Metrics, logger)
	return app, nil
}

func (a *App) buildLocal() (detection.Classifier, error) {
	cfg := a.Config.Local
	m, err := model.Load(model.LoadOptions{
		WeightsPath: cfg.ModelPath,
		ONNX: model.ONNXOptions{
			LibraryPath: cfg.ONNXLibraryPath,
			InputSize:   cfg.InputSize,
		},
		Seed: cfg.Seed,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, m.Close)

	loader := imageprocessor.NewLoader(
		imageprocessor.NewFetcher(cfg.FetchTimeout),
		a.Logger,
		imageprocessor.WithMaxPixels(a.Config.MaxImagePixels),
	)
	return usecase.NewLocalClassifier(loader, m, cfg.InferenceTimeout, a.Logger,
		usecase.WithMaxConcurrentInferences(cfg.MaxConcurrentInferences),
	), nil
}

func (a *App) buildRemote(ctx context.Context) (detection.Classifier, error) {
	cfg := a.Config.Remote
	client := hfclient.New(hfclient.Config{
		BaseURL:             cfg.BaseURL,
		Model:               cfg.Model,
		WarmupModel:         cfg.WarmupModel,
		APIKey:              cfg.APIKey,
		Timeout:             cfg.RequestTimeout,
		MaxAttempts:         cfg.MaxAttempts,
		BackoffStep:         cfg.BackoffStep,
		RequestsPerSecond:   cfg.RequestsPerSecond,
		Burst:               cfg.Burst,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  cfg.BreakerMinRequests,
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.BreakerOpenTimeout,
	}, a.Logger, hfclient.WithAttemptObserver(a.Metrics.ObserveUpstreamAttempt))

	if !client.APIKeyConfigured() {
		a.Logger.Warn("HF_API_KEY is not set; remote classifications will fail until it is configured")
	} else if cfg.Warmup {
		a.warmup = client.Warmup
	}

	memory := usecase.NewMemoryCache(a.Config.Cache.Capacity)
	var cache usecase.ResultCache = memory
	if a.Config.Cache.RedisAddr != "" {
		redisClient, err := a.initRedis(ctx)
		if err != nil {
			return nil, err
		}
		cache = usecase.NewTieredCache(memory, usecase.NewRedisCache(redisClient), a.Config.Cache.RedisTTL, a.Logger)
	}

	return usecase.NewRemoteClassifier(
		imageprocessor.NewFetcher(cfg.FetchTimeout),
		client,
		cache,
		usecase.RemoteOptions{
			CandidateLabels: cfg.CandidateLabels,
			MaxDimension:    cfg.MaxDimension,
			JPEGQuality:     cfg.JPEGQuality,
			MaxPixels:       a.Config.MaxImagePixels,
			Policy:          cfg.Policy,
			Recorder:        a.Metrics,
		},
		a.Logger,
	), nil
}

func (a *App) initRedis(ctx context.Context) (*redis.Client, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: a.Config.Cache.RedisAddr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.Logger.Info("shared result cache enabled", zap.String("addr", a.Config.Cache.RedisAddr))
	return client, nil
}

func (a *App) initRepository(ctx context.Context) (*repository.ClassificationRepository, error) {
	db, err := gorm.Open(postgres.Open(a.Config.Database.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	a.closers = append(a.closers, sqlDB.Close)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	repo := repository.NewClassificationRepository(db, a.Logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return repo, nil
}

// StartWarmup fires the best-effort warm-up request in the background.
func (a *App) StartWarmup(ctx context.Context) {
	if a.warmup == nil {
		return
	}
	go a.warmup(ctx)
}

// Router builds the HTTP front end.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.Metrics.Middleware())

	authOpts := auth.Options{
		Secret:   a.Config.Auth.JWTSecret,
		Audience: a.Config.Auth.JWTAudience,
		APIKeys:  a.Config.Auth.APIKeys,
	}
	var authMiddleware gin.HandlerFunc
	if authOpts.Enabled() {
		authMiddleware = auth.Middleware(authOpts)
	}

	handlers.RegisterRoutes(router, a.UseCase, authMiddleware, a.Metrics.Handler())
	return router
}

// HTTPServer wraps Router in a server bound to the configured address.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// GRPCServer builds the gRPC surface with the detector and health services.
func (a *App) GRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer()
	hs := grpcapi.Register(server, a.UseCase, a.Logger)
	return server, hs
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
