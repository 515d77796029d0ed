package vector

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1]. Returns 0 for
// mismatched or zero-magnitude inputs so degenerate vectors never cluster.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// IncrementalMean folds one new vector into a running mean of oldCount
// vectors. The formula uses the pre-increment count so the result is exactly
// the arithmetic mean over oldCount+1 members.
func IncrementalMean(oldMean []float64, oldCount int, v []float64) []float64 {
	if oldCount <= 0 || len(oldMean) == 0 {
		out := make([]float64, len(v))
		copy(out, v)
		return out
	}
	if len(oldMean) != len(v) {
		return oldMean
	}
	n := float64(oldCount)
	out := make([]float64, len(oldMean))
	for i := range oldMean {
		out[i] = (oldMean[i]*n + v[i]) / (n + 1)
	}
	return out
}

// Mean returns the arithmetic mean of the given vectors. Used on merge,
// where two independently-built means must be recombined from raw members
// rather than averaged incrementally.
func Mean(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	count := 0
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i := range v {
			sum[i] += v[i]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}
