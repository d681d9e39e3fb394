package handlers

import (
	"errors"
	"net/http"

	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/triplet"
)

// MineHandler serves hard-example mining and loss computation over batches
// posted by a training loop.
type MineHandler struct {
	config *config.Config
}

// NewMineHandler creates a new mine handler.
func NewMineHandler(cfg *config.Config) *MineHandler {
	return &MineHandler{config: cfg}
}

// MineRequest is a batch of embeddings with aligned identity labels.
type MineRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
	Labels     []int       `json:"labels"`
	Normalize  bool        `json:"normalize"`
}

// MineResponse holds the per-anchor hard example selection.
type MineResponse struct {
	DistAP  []float64 `json:"dist_ap"`
	DistAN  []float64 `json:"dist_an"`
	PosInds []int     `json:"pos_inds"`
	NegInds []int     `json:"neg_inds"`
}

// Mine handles POST /api/v1/mine.
func (h *MineHandler) Mine(w http.ResponseWriter, r *http.Request) {
	var req MineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embeddings) != len(req.Labels) {
		respondError(w, http.StatusBadRequest, "embeddings and labels must have the same length")
		return
	}

	feat := req.Embeddings
	if req.Normalize {
		feat = triplet.Normalize(feat)
	}

	dist, err := triplet.SelfDistances(feat)
	if err != nil {
		respondMiningError(w, err)
		return
	}

	mined, err := triplet.HardExampleMining(dist, req.Labels, true)
	if err != nil {
		respondMiningError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, MineResponse{
		DistAP:  mined.DistAP,
		DistAN:  mined.DistAN,
		PosInds: mined.PosInds,
		NegInds: mined.NegInds,
	})
}

// LossRequest extends a mining batch with loss parameters. A nil margin uses
// the configured default; soft switches to the soft-margin variant.
type LossRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
	Labels     []int       `json:"labels"`
	Normalize  bool        `json:"normalize"`
	Margin     *float64    `json:"margin,omitempty"`
	Soft       bool        `json:"soft"`
}

// Loss handles POST /api/v1/loss.
func (h *MineHandler) Loss(w http.ResponseWriter, r *http.Request) {
	var req LossRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	var loss *triplet.Loss
	switch {
	case req.Soft:
		loss = triplet.NewSoft()
	case req.Margin != nil:
		loss = triplet.New(*req.Margin)
	case h.config.Mining.Soft:
		loss = triplet.NewSoft()
	default:
		loss = triplet.New(h.config.Mining.Margin)
	}

	res, err := loss.Forward(req.Embeddings, req.Labels, req.Normalize || h.config.Mining.Normalize)
	if err != nil {
		respondMiningError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// respondMiningError maps core errors onto HTTP statuses: shape and
// composition problems are client errors.
func respondMiningError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, triplet.ErrShapeMismatch), errors.Is(err, triplet.ErrNoCandidates):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
