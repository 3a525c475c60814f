package model

import (
	"errors"
	"io/fs"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/detection"
)

// LoadOptions selects the weights artifact for the local classifier.
type LoadOptions struct {
	WeightsPath string
	ONNX        ONNXOptions
	// Seed makes an untrained network reproducible. Zero seeds from the clock.
	Seed int64
}

// Load returns an ONNX-backed model when the weights artifact exists and an
// untrained network otherwise. A missing artifact is a degraded state, not an
// error; an artifact that exists but cannot be loaded is a ConfigError.
func Load(opts LoadOptions, logger *zap.Logger) (Model, error) {
	logger = logger.Named("model")
	size := opts.ONNX.normalize().InputSize

	if opts.WeightsPath != "" {
		_, err := os.Stat(opts.WeightsPath)
		switch {
		case err == nil:
			m, err := NewONNXModel(opts.WeightsPath, opts.ONNX)
			if err != nil {
				return nil, &detection.ConfigError{Key: "MODEL_PATH", Reason: err.Error()}
			}
			logger.Info("loaded model weights", zap.String("path", opts.WeightsPath), zap.Int("input_size", size))
			return m, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &detection.ConfigError{Key: "MODEL_PATH", Reason: err.Error()}
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Warn("model weights not found, using untrained network; predictions are unreliable",
		zap.String("path", opts.WeightsPath))
	return NewNetwork(size, rand.New(rand.NewSource(seed)))
}
