package triplet

import "fmt"

// MiningResult holds the per-anchor hardest-example selection.
type MiningResult struct {
	// DistAP[i] is the distance from anchor i to its hardest positive
	// (same identity, maximum distance).
	DistAP []float64

	// DistAN[i] is the distance from anchor i to its hardest negative
	// (different identity, minimum distance).
	DistAN []float64

	// PosInds and NegInds are the absolute column indices of the selected
	// positive/negative samples. Only populated when requested.
	PosInds []int
	NegInds []int
}

// HardExampleMining selects, for every anchor row of the distance matrix, the
// farthest same-label column (hardest positive, includes j==i at distance ≈0)
// and the nearest different-label column (hardest negative). Ties are broken
// by first occurrence so results are deterministic.
//
// The selection is a per-row masked reduction, so positive/negative counts may
// differ between anchors; identity-balanced batches are a sampler concern, not
// a requirement here. An anchor with no positive or no negative candidate at
// all fails with ErrNoCandidates.
func HardExampleMining(dist [][]float64, labels []int, returnInds bool) (*MiningResult, error) {
	n := len(dist)
	if n == 0 {
		return nil, fmt.Errorf("empty distance matrix: %w", ErrShapeMismatch)
	}
	for i, row := range dist {
		if len(row) != n {
			return nil, fmt.Errorf("distance matrix row %d has %d columns, want %d: %w", i, len(row), n, ErrShapeMismatch)
		}
	}
	if len(labels) != n {
		return nil, fmt.Errorf("got %d labels for %d anchors: %w", len(labels), n, ErrShapeMismatch)
	}

	res := &MiningResult{
		DistAP: make([]float64, n),
		DistAN: make([]float64, n),
	}
	if returnInds {
		res.PosInds = make([]int, n)
		res.NegInds = make([]int, n)
	}

	for i := 0; i < n; i++ {
		pIdx, nIdx := -1, -1
		var pDist, nDist float64

		for j := 0; j < n; j++ {
			d := dist[i][j]
			if labels[j] == labels[i] {
				if pIdx < 0 || d > pDist {
					pIdx, pDist = j, d
				}
			} else {
				if nIdx < 0 || d < nDist {
					nIdx, nDist = j, d
				}
			}
		}

		if pIdx < 0 {
			return nil, fmt.Errorf("anchor %d (label %d) has no positive: %w", i, labels[i], ErrNoCandidates)
		}
		if nIdx < 0 {
			return nil, fmt.Errorf("anchor %d (label %d) has no negative: %w", i, labels[i], ErrNoCandidates)
		}

		res.DistAP[i] = pDist
		res.DistAN[i] = nDist
		if returnInds {
			res.PosInds[i] = pIdx
			res.NegInds[i] = nIdx
		}
	}

	return res, nil
}
