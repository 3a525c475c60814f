package features

import (
	"math"

	"github.com/example/ai-detect/internal/imageprocessor"
)

const (
	DefaultLBPRadius = 3
	DefaultLBPPoints = 8
	DefaultCannyLow  = 50
	DefaultCannyHigh = 150
	lumaRed          = 0.299
	lumaGreen        = 0.587
	lumaBlue         = 0.114
	degenerateStd    = 1e-12
)

// Extractor computes Vectors. The zero value is not usable; call NewExtractor.
//
// Extraction runs at whatever resolution the tensor has. The texture pass is
// O(H×W×LBPPoints), so callers that care about latency downsample first.
type Extractor struct {
	LBPRadius int
	LBPPoints int
	CannyLow  float64
	CannyHigh float64
}

// NewExtractor returns an extractor with the default LBP and edge parameters.
func NewExtractor() Extractor {
	return Extractor{
		LBPRadius: DefaultLBPRadius,
		LBPPoints: DefaultLBPPoints,
		CannyLow:  DefaultCannyLow,
		CannyHigh: DefaultCannyHigh,
	}
}

// Extract computes the feature vector of t. Flat images yield zero skewness
// and kurtosis rather than dividing by a zero standard deviation.
func (e Extractor) Extract(t *imageprocessor.Tensor) Vector {
	var v Vector
	if t == nil || t.Pixels() == 0 {
		return v
	}

	gray := Grayscale(t)
	v[MeanIntensity], v[StdIntensity], v[Skewness], v[Kurtosis] = moments(gray)
	v[EdgeDensity] = edgeDensity(gray, t.Width, t.Height, e.CannyLow, e.CannyHigh)
	v[LBPVariance] = lbpVariance(gray, t.Width, t.Height, e.LBPRadius, e.LBPPoints)

	for c := 0; c < imageprocessor.Channels; c++ {
		mean, std := channelStats(t, c)
		v[RedMean+2*c] = mean
		v[RedStd+2*c] = std
	}
	return v
}

// Grayscale applies the ITU-R BT.601 luma transform, keeping the [0,1] range.
func Grayscale(t *imageprocessor.Tensor) []float64 {
	gray := make([]float64, t.Pixels())
	for i := range gray {
		p := t.Data[i*imageprocessor.Channels:]
		gray[i] = lumaRed*float64(p[0]) + lumaGreen*float64(p[1]) + lumaBlue*float64(p[2])
	}
	return gray
}

func moments(values []float64) (mean, std, skew, kurt float64) {
	n := float64(len(values))
	for _, x := range values {
		mean += x
	}
	mean /= n

	var m2, m3, m4 float64
	for _, x := range values {
		d := x - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2 /= n
	m3 /= n
	m4 /= n

	std = math.Sqrt(m2)
	if std < degenerateStd {
		return mean, 0, 0, 0
	}
	skew = m3 / (std * std * std)
	kurt = m4 / (m2 * m2)
	return mean, std, skew, kurt
}

func channelStats(t *imageprocessor.Tensor, channel int) (mean, std float64) {
	n := float64(t.Pixels())
	for i := channel; i < len(t.Data); i += imageprocessor.Channels {
		mean += float64(t.Data[i])
	}
	mean /= n
	var m2 float64
	for i := channel; i < len(t.Data); i += imageprocessor.Channels {
		d := float64(t.Data[i]) - mean
		m2 += d * d
	}
	return mean, math.Sqrt(m2 / n)
}
