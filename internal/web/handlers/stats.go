package handlers

import (
	"net/http"

	"github.com/marsik/reid-mine/internal/config"
)

// StatsHandler serves sample store statistics.
type StatsHandler struct {
	config *config.Config
	store  SampleStore
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(cfg *config.Config, store SampleStore) *StatsHandler {
	return &StatsHandler{config: cfg, store: store}
}

// Get handles GET /api/v1/stats. Pass ?per_person=true for the identity
// breakdown.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "sample store not configured")
		return
	}

	perPerson := r.URL.Query().Get("per_person") == "true"

	stats, err := h.store.Stats(r.Context(), perPerson)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
