package features

import "math"

// lbpVariance builds a simplified local binary pattern code map and returns its
// population variance. Every pixel at least radius away from the border gets an
// n-bit code: bit k is set when the neighbor at angle 2πk/n on a circle of the
// given radius is at least as bright as the center. Border pixels keep code 0
// and are included in the variance.
func lbpVariance(gray []float64, width, height, radius, points int) float64 {
	if len(gray) == 0 || points <= 0 || points > 63 || radius < 0 {
		return 0
	}

	dy := make([]int, points)
	dx := make([]int, points)
	for k := 0; k < points; k++ {
		angle := 2 * math.Pi * float64(k) / float64(points)
		dy[k] = snapFloor(float64(radius) * math.Cos(angle))
		dx[k] = snapFloor(float64(radius) * math.Sin(angle))
	}

	codes := make([]float64, len(gray))
	for i := radius; i < height-radius; i++ {
		for j := radius; j < width-radius; j++ {
			center := gray[i*width+j]
			var code uint64
			for k := 0; k < points; k++ {
				if gray[(i+dy[k])*width+j+dx[k]] >= center {
					code |= 1 << uint(k)
				}
			}
			codes[i*width+j] = float64(code)
		}
	}

	var mean float64
	for _, c := range codes {
		mean += c
	}
	mean /= float64(len(codes))
	var variance float64
	for _, c := range codes {
		d := c - mean
		variance += d * d
	}
	return variance / float64(len(codes))
}

// snapFloor floors v after discarding floating point noise, so that
// 3·cos(3π/2) lands on 0 rather than -1.
func snapFloor(v float64) int {
	return int(math.Floor(math.Round(v*1e9) / 1e9))
}
