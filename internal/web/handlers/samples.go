package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database"
)

// maxUploadSize caps person-crop uploads at 16 MB.
const maxUploadSize = 16 << 20

// SamplesHandler ingests person crops through the feature extractor and
// serves gallery retrieval.
type SamplesHandler struct {
	config    *config.Config
	store     SampleStore
	extractor Extractor
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(cfg *config.Config, store SampleStore, extractor Extractor) *SamplesHandler {
	return &SamplesHandler{config: cfg, store: store, extractor: extractor}
}

// UploadResponse describes a stored sample.
type UploadResponse struct {
	UID      string `json:"uid"`
	PersonID int    `json:"person_id"`
	CamID    int    `json:"cam_id"`
	Seq      int    `json:"seq"`
	Dim      int    `json:"dim"`
	Model    string `json:"model"`
}

// Upload handles POST /api/v1/samples: multipart form with a person crop
// under "file" plus person_id and cam_id fields.
func (h *SamplesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || h.extractor == nil {
		respondError(w, http.StatusServiceUnavailable, "sample store not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	personID, err := strconv.Atoi(r.FormValue("person_id"))
	if err != nil || personID < 0 {
		respondError(w, http.StatusBadRequest, "person_id must be a non-negative integer")
		return
	}
	camID, err := strconv.Atoi(r.FormValue("cam_id"))
	if err != nil || camID < 0 {
		respondError(w, http.StatusBadRequest, "cam_id must be a non-negative integer")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload")
		return
	}

	res, err := h.extractor.Extract(r.Context(), imageData)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("feature extraction failed: %v", err))
		return
	}

	seq, err := h.store.NextSeq(r.Context(), personID, camID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sample := &database.StoredSample{
		UID:       uuid.NewString(),
		PersonID:  personID,
		CamID:     camID,
		Seq:       seq,
		Embedding: res.Embedding,
		Model:     res.Model,
		Dim:       len(res.Embedding),
	}
	if err := h.store.Save(r.Context(), sample); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, UploadResponse{
		UID:      sample.UID,
		PersonID: sample.PersonID,
		CamID:    sample.CamID,
		Seq:      sample.Seq,
		Dim:      sample.Dim,
		Model:    sample.Model,
	})
}

// SimilarRequest asks for the k nearest stored samples.
type SimilarRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
}

// SimilarMatch is one retrieval result.
type SimilarMatch struct {
	UID      string  `json:"uid"`
	PersonID int     `json:"person_id"`
	CamID    int     `json:"cam_id"`
	Seq      int     `json:"seq"`
	Distance float64 `json:"distance"`
}

// Similar handles POST /api/v1/query/similar.
func (h *SamplesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "sample store not configured")
		return
	}

	var req SimilarRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	samples, distances, err := h.store.FindSimilar(r.Context(), req.Embedding, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	matches := make([]SimilarMatch, len(samples))
	for i, s := range samples {
		matches[i] = SimilarMatch{
			UID:      s.UID,
			PersonID: s.PersonID,
			CamID:    s.CamID,
			Seq:      s.Seq,
			Distance: distances[i],
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
