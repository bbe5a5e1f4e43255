package entropy

// Pick performs a single-winner cumulative-weight draw over weights and returns
// the winning index, or -1 when weights is empty.
//
// A value r is drawn uniformly in [0, total); each positive weight is subtracted
// from r in order and the option that drives the remainder to <= 0 wins. When
// rounding leaves no winner the last positive-weight option wins. Non-positive
// weights are never selected unless every weight is non-positive, in which case
// the draw is uniform.
func Pick(src Source, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}

	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if total <= 0 {
		idx := int(src.Float64() * float64(len(weights)))
		if idx >= len(weights) {
			idx = len(weights) - 1
		}
		return idx
	}

	r := src.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		r -= w
		if r <= 0 {
			return i
		}
	}
	return last
}
