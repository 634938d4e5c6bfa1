package core

// MinMaxNormalize rescales values to [0, 1]. When every value is equal
// (including the single-element and empty cases) every output is 1.0 —
// there is no discriminating signal to normalize, so nothing is
// penalized. Normalization is always computed fresh per request; a
// normalized score must never be cached or reused across requests.
func MinMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	spread := max - min
	for i, v := range values {
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (v - min) / spread
	}
	return out
}
