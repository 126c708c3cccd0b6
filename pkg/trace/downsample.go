package trace

// Downsample reduces points to at most maxPoints by decimation for display.
// It reuses dst when it has enough capacity and returns the resulting slice.
func Downsample(dst []Point, points []Point, maxPoints int) []Point {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(points) <= maxPoints {
		if cap(dst) < len(points) {
			dst = make([]Point, len(points))
		}
		dst = dst[:len(points)]
		copy(dst, points)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Point, 0, maxPoints)
	}

	step := float64(len(points)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(points) {
			dst = append(dst, points[idx])
		}
	}
	return dst
}
