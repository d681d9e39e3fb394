package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an in-memory HNSW graph over the sample store for fast
// gallery retrieval. Rebuild it from the store on startup; it is not
// persisted.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	uidToEntry map[string]*StoredSample // maps node key (sample UID) to sample
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		uidToEntry: make(map[string]*StoredSample),
	}
}

// BuildFromSamples builds the index from a slice of stored samples.
func (h *HNSWIndex) BuildFromSamples(samples []StoredSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(samples) == 0 {
		h.graph = nil
		h.uidToEntry = make(map[string]*StoredSample)
		return nil
	}

	// Euclidean distance: re-ID features are compared with L2, matching
	// both the miner and the pgvector <-> operator.
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	h.uidToEntry = make(map[string]*StoredSample, len(samples))

	for i := range samples {
		sample := &samples[i]
		if len(sample.Embedding) == 0 {
			continue
		}

		g.Add(hnsw.MakeNode(sample.UID, sample.Embedding))
		h.uidToEntry[sample.UID] = sample
	}

	h.graph = g
	return nil
}

// Search finds the k nearest neighbors to the query embedding.
// Returns the matched samples and their exact Euclidean distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]StoredSample, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	samples := make([]StoredSample, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))

	for _, n := range neighbors {
		entry := h.uidToEntry[n.Key]
		if entry == nil {
			continue
		}
		samples = append(samples, *entry)
		// Recompute exactly from the node's own vector; the graph's
		// internal distance is float32.
		distances = append(distances, EuclideanDistance(query, n.Value))
	}

	return samples, distances, nil
}

// Add inserts a single sample into the index.
func (h *HNSWIndex) Add(sample *StoredSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		g := hnsw.NewGraph[string]()
		g.M = HNSWMaxNeighbors
		g.Ml = 1.0 / float64(HNSWMaxNeighbors)
		g.EfSearch = HNSWEfSearch
		g.Distance = hnsw.EuclideanDistance
		h.graph = g
	}

	if len(sample.Embedding) == 0 {
		return errors.New("sample has no embedding")
	}

	h.graph.Add(hnsw.MakeNode(sample.UID, sample.Embedding))
	h.uidToEntry[sample.UID] = sample
	return nil
}

// Count returns the number of indexed samples.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.uidToEntry)
}
