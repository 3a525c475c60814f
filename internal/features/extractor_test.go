package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ai-detect/internal/imageprocessor"
)

func uniformTensor(h, w int, r, g, b float32) *imageprocessor.Tensor {
	t := imageprocessor.NewTensor(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t.Set(y, x, 0, r)
			t.Set(y, x, 1, g)
			t.Set(y, x, 2, b)
		}
	}
	return t
}

func TestVectorLayout(t *testing.T) {
	require.Equal(t, 12, Size)
	assert.Equal(t, "mean_intensity", Names[MeanIntensity])
	assert.Equal(t, "lbp_variance", Names[LBPVariance])
	assert.Equal(t, "blue_std", Names[BlueStd])

	var v Vector
	v[EdgeDensity] = 0.25
	named := v.Named()
	assert.Len(t, named, 12)
	assert.Equal(t, 0.25, named["edge_density"])
	assert.Len(t, v.Float32(), 12)
}

func TestExtractUniformGrayIsDegenerateSafe(t *testing.T) {
	v := NewExtractor().Extract(uniformTensor(10, 10, 0.5, 0.5, 0.5))

	assert.InDelta(t, 0.5, v[MeanIntensity], 1e-6)
	assert.Zero(t, v[StdIntensity])
	assert.Zero(t, v[Skewness])
	assert.Zero(t, v[Kurtosis])
	assert.Zero(t, v[EdgeDensity])
	for _, f := range v {
		assert.False(t, math.IsNaN(f))
		assert.False(t, math.IsInf(f, 0))
	}
}

func TestExtractLBPVarianceOfFlatImage(t *testing.T) {
	// Interior 4x4 pixels get code 255, the 3-pixel border stays 0.
	v := NewExtractor().Extract(uniformTensor(10, 10, 0.3, 0.3, 0.3))

	mean := 16.0 * 255 / 100
	want := 16.0/100*255*255 - mean*mean
	assert.InDelta(t, want, v[LBPVariance], 1e-6)
}

func TestExtractTwoToneMoments(t *testing.T) {
	tensor := imageprocessor.NewTensor(4, 4)
	for y := 0; y < 4; y++ {
		for x := 2; x < 4; x++ {
			for c := 0; c < 3; c++ {
				tensor.Set(y, x, c, 1)
			}
		}
	}

	v := NewExtractor().Extract(tensor)
	assert.InDelta(t, 0.5, v[MeanIntensity], 1e-6)
	assert.InDelta(t, 0.5, v[StdIntensity], 1e-6)
	assert.InDelta(t, 0.0, v[Skewness], 1e-6)
	assert.InDelta(t, 1.0, v[Kurtosis], 1e-6)
}

func TestExtractPerChannelStats(t *testing.T) {
	v := NewExtractor().Extract(uniformTensor(6, 6, 1, 0.5, 0))

	assert.InDelta(t, 1.0, v[RedMean], 1e-6)
	assert.InDelta(t, 0.5, v[GreenMean], 1e-6)
	assert.InDelta(t, 0.0, v[BlueMean], 1e-6)
	assert.InDelta(t, 0.0, v[RedStd], 1e-6)
	assert.InDelta(t, 0.0, v[GreenStd], 1e-6)
	assert.InDelta(t, 0.0, v[BlueStd], 1e-6)
}

func TestExtractEdgeDensityOnStep(t *testing.T) {
	const size = 32
	tensor := imageprocessor.NewTensor(size, size)
	for y := 0; y < size; y++ {
		for x := size / 2; x < size; x++ {
			for c := 0; c < 3; c++ {
				tensor.Set(y, x, c, 1)
			}
		}
	}

	v := NewExtractor().Extract(tensor)
	assert.Greater(t, v[EdgeDensity], 0.0)
	assert.LessOrEqual(t, v[EdgeDensity], 2.0/size)
}

func TestExtractEmptyTensor(t *testing.T) {
	assert.Equal(t, Vector{}, NewExtractor().Extract(nil))
	assert.Equal(t, Vector{}, NewExtractor().Extract(imageprocessor.NewTensor(0, 0)))
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 0, reflect101(-1, 1))
	assert.Equal(t, 2, reflect101(2, 5))
}

func TestSnapFloorIgnoresRoundingNoise(t *testing.T) {
	assert.Equal(t, 0, snapFloor(3*math.Cos(3*math.Pi/2)))
	assert.Equal(t, -3, snapFloor(3*math.Cos(math.Pi)))
	assert.Equal(t, 2, snapFloor(3*math.Cos(math.Pi/4)))
	assert.Equal(t, -3, snapFloor(3*math.Cos(3*math.Pi/4)))
}
