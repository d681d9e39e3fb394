// Package eval implements the single-query re-identification protocol:
// CMC ranks and mean average precision over a query set ranked against a
// gallery, with the usual same-person/same-camera exclusion.
package eval

import (
	"errors"
	"fmt"
	"sort"

	"github.com/marsik/reid-mine/internal/triplet"
)

// ErrNoValidQueries signals that every query was skipped (no cross-camera
// match existed in the gallery).
var ErrNoValidQueries = errors.New("no valid queries")

// Sample identifies one embedding for evaluation purposes.
type Sample struct {
	PersonID int
	CamID    int
}

// Report holds the evaluation outcome.
type Report struct {
	// CMC[r-1] is the fraction of queries whose first correct match
	// appeared within rank r.
	CMC []float64 `json:"cmc"`

	// MAP is the mean average precision over all valid queries.
	MAP float64 `json:"map"`

	// Queries is the number of queries that contributed; Skipped counts
	// queries without any cross-camera gallery match.
	Queries int `json:"queries"`
	Skipped int `json:"skipped"`
}

// Evaluate ranks every query against the gallery by Euclidean distance and
// accumulates CMC and mAP up to maxRank. Gallery entries sharing both person
// and camera with the query are dropped (same-capture matches would make the
// problem trivial); entries with the same person on a different camera count
// as correct.
func Evaluate(queryEmb, galleryEmb [][]float32, query, gallery []Sample, maxRank int) (*Report, error) {
	if len(queryEmb) != len(query) || len(galleryEmb) != len(gallery) {
		return nil, fmt.Errorf("embedding/sample count mismatch: %w", triplet.ErrShapeMismatch)
	}
	if maxRank < 1 {
		return nil, fmt.Errorf("maxRank must be ≥ 1, got %d", maxRank)
	}
	if maxRank > len(gallery) {
		maxRank = len(gallery)
	}

	dist, err := triplet.EuclideanDistances(queryEmb, galleryEmb)
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}

	cmc := make([]float64, maxRank)
	var sumAP float64
	valid, skipped := 0, 0

	for qi := range query {
		order := rankGallery(dist[qi])

		// Walk the ranking, dropping junk entries and marking matches.
		rank := 0
		firstHit := -1
		hits := 0
		var ap float64
		for _, gi := range order {
			if gallery[gi].PersonID == query[qi].PersonID && gallery[gi].CamID == query[qi].CamID {
				continue
			}
			if gallery[gi].PersonID == query[qi].PersonID {
				hits++
				ap += float64(hits) / float64(rank+1)
				if firstHit < 0 {
					firstHit = rank
				}
			}
			rank++
		}

		if hits == 0 {
			skipped++
			continue
		}
		valid++

		if firstHit < maxRank {
			for r := firstHit; r < maxRank; r++ {
				cmc[r]++
			}
		}
		sumAP += ap / float64(hits)
	}

	if valid == 0 {
		return nil, fmt.Errorf("%d queries, all skipped: %w", len(query), ErrNoValidQueries)
	}

	for r := range cmc {
		cmc[r] /= float64(valid)
	}

	return &Report{
		CMC:     cmc,
		MAP:     sumAP / float64(valid),
		Queries: valid,
		Skipped: skipped,
	}, nil
}

// rankGallery returns gallery indices sorted ascending by distance, index
// ascending on ties, so rankings are deterministic.
func rankGallery(row []float64) []int {
	order := make([]int, len(row))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return row[order[a]] < row[order[b]]
	})
	return order
}
