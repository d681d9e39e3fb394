// Package handlers implements the HTTP API: mining and loss computation over
// posted batches, sample ingestion through the feature extractor, gallery
// retrieval and store statistics.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/marsik/reid-mine/internal/database"
	"github.com/marsik/reid-mine/internal/feature"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// SampleStore is the slice of the repository the handlers need.
type SampleStore interface {
	Save(ctx context.Context, sample *database.StoredSample) error
	NextSeq(ctx context.Context, personID, camID int) (int, error)
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.StoredSample, []float64, error)
	Stats(ctx context.Context, perPerson bool) (*database.StoreStats, error)
}

// Extractor turns person crops into embedding vectors.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) (*feature.Result, error)
}

// decodeJSON reads a JSON request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
