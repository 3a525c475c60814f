package imageprocessor

import (
	"fmt"
	"image"
	"image/color"
)

// Channels is the number of color planes in a Tensor.
const Channels = 3

// Tensor is an H×W×3 RGB image stored row-major (HWC) with samples in [0,1].
type Tensor struct {
	Height int
	Width  int
	Data   []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(height, width int) *Tensor {
	return &Tensor{
		Height: height,
		Width:  width,
		Data:   make([]float32, height*width*Channels),
	}
}

// At returns the sample for row y, column x and channel c.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*Channels+c]
}

// Set stores the sample for row y, column x and channel c.
func (t *Tensor) Set(y, x, c int, v float32) {
	t.Data[(y*t.Width+x)*Channels+c] = v
}

// Pixels returns the number of pixels in the tensor.
func (t *Tensor) Pixels() int {
	return t.Height * t.Width
}

// CheckShape panics when the tensor is not height×width×3.
func (t *Tensor) CheckShape(height, width int) {
	if t == nil || t.Height != height || t.Width != width || len(t.Data) != height*width*Channels {
		panic(fmt.Sprintf("imageprocessor: tensor shape mismatch: want %dx%dx%d", height, width, Channels))
	}
}

// FromImage converts any decoded image to an RGB tensor at its native resolution.
// Alpha is discarded and 8-bit samples are divided by 255.
func FromImage(img image.Image) *Tensor {
	bounds := img.Bounds()
	t := NewTensor(bounds.Dy(), bounds.Dx())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			t.Data[i] = float32(c.R) / 255
			t.Data[i+1] = float32(c.G) / 255
			t.Data[i+2] = float32(c.B) / 255
			i += Channels
		}
	}
	return t
}
