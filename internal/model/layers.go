package model

import (
	"math"
	"math/rand"
)

const (
	kernelSize  = 3
	batchNormEp = 1e-3
)

// conv2D is a 3x3 stride-1 convolution with zero "same" padding.
// Weights are laid out [ky][kx][in][out] so the inner loop walks outputs.
type conv2D struct {
	in, out int
	weights []float32
	bias    []float32
}

func newConv2D(in, out int, rng *rand.Rand) conv2D {
	std := math.Sqrt(2.0 / float64(kernelSize*kernelSize*in))
	w := make([]float32, kernelSize*kernelSize*in*out)
	for i := range w {
		w[i] = float32(rng.NormFloat64() * std)
	}
	return conv2D{in: in, out: out, weights: w, bias: make([]float32, out)}
}

func (c conv2D) forward(src []float32, h, w int) []float32 {
	dst := make([]float32, h*w*c.out)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := dst[(y*w+x)*c.out : (y*w+x+1)*c.out]
			copy(acc, c.bias)
			for ky := 0; ky < kernelSize; ky++ {
				sy := y + ky - 1
				if sy < 0 || sy >= h {
					continue
				}
				for kx := 0; kx < kernelSize; kx++ {
					sx := x + kx - 1
					if sx < 0 || sx >= w {
						continue
					}
					pix := src[(sy*w+sx)*c.in : (sy*w+sx+1)*c.in]
					kernel := c.weights[(ky*kernelSize+kx)*c.in*c.out:]
					for ic, v := range pix {
						if v == 0 {
							continue
						}
						row := kernel[ic*c.out : (ic+1)*c.out]
						for oc, k := range row {
							acc[oc] += v * k
						}
					}
				}
			}
		}
	}
	return dst
}

// batchNorm applies inference-time normalization with running statistics.
type batchNorm struct {
	scale []float32
	shift []float32
}

func newBatchNorm(channels int) batchNorm {
	gamma := make([]float32, channels)
	beta := make([]float32, channels)
	mean := make([]float32, channels)
	variance := make([]float32, channels)
	for i := range gamma {
		gamma[i] = 1
		variance[i] = 1
	}
	return foldBatchNorm(gamma, beta, mean, variance)
}

func foldBatchNorm(gamma, beta, mean, variance []float32) batchNorm {
	bn := batchNorm{scale: make([]float32, len(gamma)), shift: make([]float32, len(gamma))}
	for i := range gamma {
		s := gamma[i] / float32(math.Sqrt(float64(variance[i])+batchNormEp))
		bn.scale[i] = s
		bn.shift[i] = beta[i] - mean[i]*s
	}
	return bn
}

// forwardReLU normalizes and rectifies in place.
func (b batchNorm) forwardReLU(data []float32) {
	channels := len(b.scale)
	for i := range data {
		c := i % channels
		v := data[i]*b.scale[c] + b.shift[c]
		if v < 0 {
			v = 0
		}
		data[i] = v
	}
}

// maxPool2 halves both spatial dimensions, dropping an odd trailing row/column.
func maxPool2(src []float32, h, w, channels int) ([]float32, int, int) {
	oh, ow := h/2, w/2
	dst := make([]float32, oh*ow*channels)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			out := dst[(y*ow+x)*channels : (y*ow+x+1)*channels]
			for c := range out {
				out[c] = float32(math.Inf(-1))
			}
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					in := src[((2*y+dy)*w+2*x+dx)*channels:]
					for c := range out {
						if in[c] > out[c] {
							out[c] = in[c]
						}
					}
				}
			}
		}
	}
	return dst, oh, ow
}

func globalAveragePool(src []float32, h, w, channels int) []float32 {
	out := make([]float32, channels)
	for i, v := range src {
		out[i%channels] += v
	}
	n := float32(h * w)
	for c := range out {
		out[c] /= n
	}
	return out
}

// dense is a fully connected layer with weights laid out [out][in].
type dense struct {
	in, out int
	weights []float32
	bias    []float32
}

func newDense(in, out int, rng *rand.Rand) dense {
	std := math.Sqrt(2.0 / float64(in))
	w := make([]float32, in*out)
	for i := range w {
		w[i] = float32(rng.NormFloat64() * std)
	}
	return dense{in: in, out: out, weights: w, bias: make([]float32, out)}
}

func (d dense) forward(src []float32, relu bool) []float32 {
	dst := make([]float32, d.out)
	for o := 0; o < d.out; o++ {
		row := d.weights[o*d.in : (o+1)*d.in]
		acc := d.bias[o]
		for i, v := range src {
			acc += v * row[i]
		}
		if relu && acc < 0 {
			acc = 0
		}
		dst[o] = acc
	}
	return dst
}
