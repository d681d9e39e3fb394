package database

import "math"

// EuclideanDistance computes the L2 distance between two stored embeddings.
// Matches the ordering pgvector's <-> operator produces, so HNSW and
// PostgreSQL retrieval paths rank identically.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
