package usecase

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/features"
	"github.com/example/ai-detect/internal/imageprocessor"
	"github.com/example/ai-detect/internal/model"
)

// SourceLocalModel tags results produced by the in-process network.
const SourceLocalModel = "custom_model"

// TensorLoader produces a model-ready tensor for a URL.
type TensorLoader interface {
	Load(ctx context.Context, url string, width, height int) (*imageprocessor.Tensor, error)
}

// LocalClassifier runs the in-process CNN. It is stateless apart from the
// read-only model and never caches.
type LocalClassifier struct {
	loader    TensorLoader
	model     model.Model
	extractor features.Extractor
	timeout   time.Duration
	inflight  *semaphore.Weighted
	logger    *zap.Logger
}

// LocalOption customizes a LocalClassifier.
type LocalOption func(*localSettings)

type localSettings struct {
	maxInflight int64
}

// WithMaxConcurrentInferences bounds how many forward passes may run at once,
// counting passes whose caller already timed out. Non-positive values keep
// the default of GOMAXPROCS.
func WithMaxConcurrentInferences(n int) LocalOption {
	return func(s *localSettings) {
		if n > 0 {
			s.maxInflight = int64(n)
		}
	}
}

// NewLocalClassifier wires the local strategy. A zero timeout disables the
// inference deadline.
func NewLocalClassifier(loader TensorLoader, m model.Model, timeout time.Duration, logger *zap.Logger, opts ...LocalOption) *LocalClassifier {
	settings := localSettings{maxInflight: int64(runtime.GOMAXPROCS(0))}
	for _, opt := range opts {
		opt(&settings)
	}
	return &LocalClassifier{
		loader:    loader,
		model:     m,
		extractor: features.NewExtractor(),
		timeout:   timeout,
		inflight:  semaphore.NewWeighted(settings.maxInflight),
		logger:    logger.Named("local_classifier"),
	}
}

// Classify loads url at the model resolution, computes the feature vector and
// the class distribution concurrently, and reports the winning class.
func (c *LocalClassifier) Classify(ctx context.Context, url string) (detection.Result, error) {
	size := c.model.InputSize()
	tensor, err := c.loader.Load(ctx, url, size, size)
	if err != nil {
		return detection.Result{}, err
	}

	dist, vec, err := c.infer(ctx, tensor)
	if err != nil {
		return detection.Result{}, err
	}

	label, confidence := detection.Decide(dist.Real, dist.AI)
	result := detection.Result{
		Label:      label,
		Confidence: confidence,
		Source:     SourceLocalModel,
		Probabilities: map[detection.Label]float64{
			detection.LabelReal: dist.Real,
			detection.LabelAI:   dist.AI,
		},
		Features: vec.Named(),
	}
	if !c.model.Trained() {
		result.Diagnostics = "untrained: model weights not loaded, prediction is unreliable"
	}
	return result, nil
}

type inference struct {
	dist model.Distribution
	vec  features.Vector
	err  error
}

func (c *LocalClassifier) infer(ctx context.Context, tensor *imageprocessor.Tensor) (model.Distribution, features.Vector, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// The slot is held until the pass finishes, even if the caller gives up.
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return model.Distribution{}, features.Vector{}, fmt.Errorf("inference: %w", err)
	}

	done := make(chan inference, 1)
	go func() {
		defer c.inflight.Release(1)
		var out inference
		var g errgroup.Group
		g.Go(func() error {
			out.vec = c.extractor.Extract(tensor)
			return nil
		})
		g.Go(func() error {
			dist, err := c.model.Predict(tensor)
			out.dist = dist
			return err
		})
		out.err = g.Wait()
		done <- out
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return model.Distribution{}, features.Vector{}, fmt.Errorf("predict: %w", out.err)
		}
		return out.dist, out.vec, nil
	case <-ctx.Done():
		return model.Distribution{}, features.Vector{}, fmt.Errorf("inference: %w", ctx.Err())
	}
}

// Health reports model readiness without running inference.
func (c *LocalClassifier) Health() detection.Health {
	return detection.Health{
		Status:       "healthy",
		Strategy:     StrategyLocal,
		ModelLoaded:  true,
		ModelTrained: c.model.Trained(),
	}
}
