package core

import "math"

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// A zero vector, an empty vector or a dimension mismatch scores 0 rather
// than failing: a single bad candidate must never break a whole search.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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

// ClampConfidence maps a raw similarity onto [0, 1] for confidence use.
func ClampConfidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
