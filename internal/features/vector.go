package features

// Positions in a Vector. The order is part of the contract with any model
// trained on this layout and must not change.
const (
	MeanIntensity = iota
	StdIntensity
	Skewness
	Kurtosis
	EdgeDensity
	LBPVariance
	RedMean
	RedStd
	GreenMean
	GreenStd
	BlueMean
	BlueStd

	Size
)

// Names lists the feature names in vector order.
var Names = [Size]string{
	"mean_intensity",
	"std_intensity",
	"skewness",
	"kurtosis",
	"edge_density",
	"lbp_variance",
	"red_mean",
	"red_std",
	"green_mean",
	"green_std",
	"blue_mean",
	"blue_std",
}

// Vector is the fixed-length statistical and texture descriptor of an image.
type Vector [Size]float64

// Named returns the vector keyed by feature name.
func (v Vector) Named() map[string]float64 {
	out := make(map[string]float64, Size)
	for i, name := range Names {
		out[name] = v[i]
	}
	return out
}

// Float32 returns the vector as model input.
func (v Vector) Float32() []float32 {
	out := make([]float32, Size)
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
