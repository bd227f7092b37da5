package embed

import "math"

// Normalize L2-normalizes v in place and returns it. A zero-magnitude vector
// is returned unchanged rather than producing NaNs.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}

// Cosine returns the cosine similarity of a and b: dot product over the
// product of magnitudes. It returns 0 when the dimensions differ or either
// magnitude is 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
