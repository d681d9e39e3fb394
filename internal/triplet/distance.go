// Package triplet implements batch-hard triplet mining for person
// re-identification: pairwise Euclidean distances over an embedding batch,
// per-anchor hardest positive/negative selection and a margin-based ranking
// loss with a triplet-ordering precision statistic.
package triplet

import (
	"errors"
	"fmt"
	"math"
)

// distFloor clamps the squared distance before the square root. The algebraic
// expansion ||x||² + ||y||² − 2x·y can go slightly negative for near-identical
// vectors due to floating-point cancellation, which would produce NaN.
// A side effect is that the self-distance diagonal comes out as ≈1e-6 rather
// than exact zero.
const distFloor = 1e-12

// normEps keeps Normalize away from division by exact zero.
const normEps = 1e-12

var (
	// ErrShapeMismatch signals inconsistent input dimensions (different
	// vector lengths, non-square distance matrix, label count mismatch).
	// Always a caller bug.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNoCandidates signals an anchor with an empty positive or negative
	// candidate set (singleton identity or single-identity batch). The batch
	// sampler upstream must guarantee at least 2 samples per identity and
	// at least 2 identities.
	ErrNoCandidates = errors.New("no mining candidates")
)

// Normalize rescales every vector to unit L2 norm, v / (||v|| + 1e-12).
// Returns new slices; the input batch is left untouched.
func Normalize(batch [][]float32) [][]float32 {
	out := make([][]float32, len(batch))
	for i, v := range batch {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norm := math.Sqrt(sum) + normEps

		nv := make([]float32, len(v))
		for j, x := range v {
			nv[j] = float32(float64(x) / norm)
		}
		out[i] = nv
	}
	return out
}

// EuclideanDistances computes the pairwise Euclidean distance matrix between
// two embedding batches: x is M×D, y is N×D, result is M×N with
// dist[i][j] = sqrt(max(||x_i||² + ||y_j||² − 2·x_i·y_j, 1e-12)).
// When called with the same batch for x and y the result is symmetric with a
// ≈1e-6 diagonal (see distFloor).
func EuclideanDistances(x, y [][]float32) ([][]float64, error) {
	if len(x) == 0 || len(y) == 0 {
		return nil, fmt.Errorf("empty batch: %w", ErrShapeMismatch)
	}

	dim := len(x[0])
	for i, v := range x {
		if len(v) != dim {
			return nil, fmt.Errorf("x[%d] has dim %d, want %d: %w", i, len(v), dim, ErrShapeMismatch)
		}
	}
	for j, v := range y {
		if len(v) != dim {
			return nil, fmt.Errorf("y[%d] has dim %d, want %d: %w", j, len(v), dim, ErrShapeMismatch)
		}
	}

	xx := squaredNorms(x)
	yy := squaredNorms(y)

	dist := make([][]float64, len(x))
	for i := range x {
		row := make([]float64, len(y))
		for j := range y {
			var dot float64
			for k := 0; k < dim; k++ {
				dot += float64(x[i][k]) * float64(y[j][k])
			}
			d2 := xx[i] + yy[j] - 2*dot
			if d2 < distFloor {
				d2 = distFloor
			}
			row[j] = math.Sqrt(d2)
		}
		dist[i] = row
	}
	return dist, nil
}

// SelfDistances computes the pairwise distance matrix of a batch with itself.
func SelfDistances(batch [][]float32) ([][]float64, error) {
	return EuclideanDistances(batch, batch)
}

func squaredNorms(batch [][]float32) []float64 {
	norms := make([]float64, len(batch))
	for i, v := range batch {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norms[i] = sum
	}
	return norms
}
