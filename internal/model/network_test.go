package model

import (
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/features"
	"github.com/example/ai-detect/internal/imageprocessor"
)

const testInputSize = 16

func randomTensor(rng *rand.Rand, size int) *imageprocessor.Tensor {
	t := imageprocessor.NewTensor(size, size)
	for i := range t.Data {
		t.Data[i] = rng.Float32()
	}
	return t
}

func TestNetworkDistributionSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	net, err := NewNetwork(testInputSize, rng)
	require.NoError(t, err)
	assert.False(t, net.Trained())

	for i := 0; i < 5; i++ {
		dist, err := net.Predict(randomTensor(rng, testInputSize))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dist.Real+dist.AI, 1e-9)
		assert.GreaterOrEqual(t, dist.AI, 0.0)
		assert.GreaterOrEqual(t, dist.Real, 0.0)

		label, conf := detection.Decide(dist.Real, dist.AI)
		assert.Equal(t, math.Max(dist.Real, dist.AI), conf)
		if dist.AI > dist.Real {
			assert.Equal(t, detection.LabelAI, label)
		} else {
			assert.Equal(t, detection.LabelReal, label)
		}
	}
}

func TestNetworkIsDeterministicAndConcurrent(t *testing.T) {
	net, err := NewNetwork(testInputSize, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	input := randomTensor(rand.New(rand.NewSource(2)), testInputSize)

	want, err := net.Predict(input)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := net.Predict(input)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestNetworkPanicsOnShapeMismatch(t *testing.T) {
	net, err := NewNetwork(testInputSize, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Panics(t, func() {
		_, _ = net.Predict(imageprocessor.NewTensor(testInputSize+1, testInputSize))
	})
}

func TestNewNetworkRejectsTinyInput(t *testing.T) {
	_, err := NewNetwork(8, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestLoadWithoutWeightsIsDegradedNotFatal(t *testing.T) {
	m, err := Load(LoadOptions{
		WeightsPath: filepath.Join(t.TempDir(), "missing.onnx"),
		ONNX:        ONNXOptions{InputSize: testInputSize},
		Seed:        3,
	}, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.Trained())
	assert.Equal(t, testInputSize, m.InputSize())
	dist, err := m.Predict(randomTensor(rand.New(rand.NewSource(4)), testInputSize))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist.Real+dist.AI, 1e-9)
}

func TestToDistributionAcceptsProbabilitiesOrLogits(t *testing.T) {
	d := toDistribution(0.25, 0.75)
	assert.InDelta(t, 0.25, d.Real, 1e-9)
	assert.InDelta(t, 0.75, d.AI, 1e-9)

	d = toDistribution(2, -1)
	assert.InDelta(t, 1.0, d.Real+d.AI, 1e-9)
	assert.Greater(t, d.Real, d.AI)
}

func TestMaxPoolAndAveragePool(t *testing.T) {
	src := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	out, h, w := maxPool2(src, 4, 4, 1)
	assert.Equal(t, 2, h)
	assert.Equal(t, 2, w)
	assert.Equal(t, []float32{6, 8, 14, 16}, out)
	assert.Equal(t, []float32{11}, globalAveragePool(out, 2, 2, 1))
}

func TestConvIdentityKernel(t *testing.T) {
	conv := conv2D{in: 1, out: 1, weights: make([]float32, 9), bias: []float32{0.5}}
	conv.weights[4] = 1
	src := []float32{1, 2, 3, 4}
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5}, conv.forward(src, 2, 2))
}

func TestEnsembleAveragesBothHeads(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net, err := NewNetwork(testInputSize, rng)
	require.NoError(t, err)
	head := NewFeatureHead(rng)
	ensemble := NewEnsemble(net, head)

	tensor := randomTensor(rng, testInputSize)
	vec := features.NewExtractor().Extract(tensor)

	got, err := ensemble.Predict(tensor, vec)
	require.NoError(t, err)
	cnn, _ := net.Predict(tensor)
	stats := head.Predict(vec)
	assert.InDelta(t, (cnn.AI+stats.AI)/2, got.AI, 1e-9)
	assert.InDelta(t, 1.0, got.Real+got.AI, 1e-9)
}
