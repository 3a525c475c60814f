package features

import "math"

var (
	tan22 = math.Tan(22.5 * math.Pi / 180)
	tan67 = math.Tan(67.5 * math.Pi / 180)
)

// edgeDensity returns the fraction of pixels marked by a Canny detector run on
// the 8-bit rendering of gray with the given hysteresis thresholds.
func edgeDensity(gray []float64, width, height int, low, high float64) float64 {
	if len(gray) == 0 {
		return 0
	}
	edges := cannyEdges(gray, width, height, low, high)
	count := 0
	for _, e := range edges {
		if e {
			count++
		}
	}
	return float64(count) / float64(len(gray))
}

func cannyEdges(gray []float64, width, height int, low, high float64) []bool {
	pix := make([]float64, len(gray))
	for i, g := range gray {
		pix[i] = math.Round(math.Min(255, math.Max(0, g*255)))
	}

	at := func(x, y int) float64 {
		return pix[reflect101(y, height)*width+reflect101(x, width)]
	}

	gx := make([]float64, len(pix))
	gy := make([]float64, len(pix))
	mag := make([]float64, len(pix))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			gx[i] = at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy[i] = at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag[i] = math.Abs(gx[i]) + math.Abs(gy[i])
		}
	}

	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return mag[y*width+x]
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, len(pix))
	stack := make([]int, 0, len(pix)/8)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var prev, next float64
			switch {
			case ay <= ax*tan22:
				prev, next = magAt(x-1, y), magAt(x+1, y)
			case ay >= ax*tan67:
				prev, next = magAt(x, y-1), magAt(x, y+1)
			case (gx[i] > 0) == (gy[i] > 0):
				prev, next = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				prev, next = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m <= prev || m < next {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	edges := make([]bool, len(pix))
	for i, s := range state {
		edges[i] = s == strong
	}
	return edges
}

// reflect101 mirrors an out-of-range index without repeating the border sample.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
