// Package model holds the local convolutional classifier.
//
// Class index 0 is "real" and index 1 is "ai". Everything downstream reads
// index 1 as the AI probability, so the order is fixed.
package model

import (
	"math"

	"github.com/example/ai-detect/internal/imageprocessor"
)

const (
	IndexReal = 0
	IndexAI   = 1

	// DefaultInputSize is the square input resolution of the shipped model.
	DefaultInputSize = 224
)

// Distribution is a (real, ai) probability pair summing to 1.
type Distribution struct {
	Real float64
	AI   float64
}

// Model maps a normalized tensor to a class distribution. Implementations are
// safe for concurrent use and never mutate shared state during Predict.
// Passing a tensor of the wrong shape is a programming error and panics.
type Model interface {
	Predict(t *imageprocessor.Tensor) (Distribution, error)
	InputSize() int
	// Trained reports whether predictions come from loaded weights.
	Trained() bool
	Close() error
}

func softmax2(a, b float64) Distribution {
	m := math.Max(a, b)
	ea, eb := math.Exp(a-m), math.Exp(b-m)
	sum := ea + eb
	return Distribution{Real: ea / sum, AI: eb / sum}
}
