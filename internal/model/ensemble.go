package model

import (
	"math/rand"

	"github.com/example/ai-detect/internal/features"
	"github.com/example/ai-detect/internal/imageprocessor"
)

const featureHeadUnits = 64

// FeatureHead is a small dense classifier over the statistical feature vector.
type FeatureHead struct {
	hidden dense
	out    dense
}

// NewFeatureHead builds an untrained head.
func NewFeatureHead(rng *rand.Rand) *FeatureHead {
	return &FeatureHead{
		hidden: newDense(features.Size, featureHeadUnits, rng),
		out:    newDense(featureHeadUnits, numClasses, rng),
	}
}

// Predict returns the head's (real, ai) distribution for v.
func (h *FeatureHead) Predict(v features.Vector) Distribution {
	hidden := h.hidden.forward(v.Float32(), true)
	logits := h.out.forward(hidden, false)
	return softmax2(float64(logits[IndexReal]), float64(logits[IndexAI]))
}

// Ensemble averages the CNN distribution with the feature head. No serving
// path uses it yet.
type Ensemble struct {
	cnn  Model
	head *FeatureHead
}

func NewEnsemble(cnn Model, head *FeatureHead) *Ensemble {
	return &Ensemble{cnn: cnn, head: head}
}

func (e *Ensemble) Predict(t *imageprocessor.Tensor, v features.Vector) (Distribution, error) {
	image, err := e.cnn.Predict(t)
	if err != nil {
		return Distribution{}, err
	}
	stats := e.head.Predict(v)
	return Distribution{
		Real: (image.Real + stats.Real) / 2,
		AI:   (image.AI + stats.AI) / 2,
	}, nil
}
