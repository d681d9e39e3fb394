package triplet

import (
	"fmt"
	"math"
)

// Loss computes the batch-hard triplet loss. With a margin configured it uses
// margin-ranking semantics with target +1: a triplet is penalized when
// dist_an − dist_ap < margin. Without a margin it falls back to the
// soft-margin variant, softplus(dist_ap − dist_an).
//
// Loss holds no mutable state and is safe for concurrent use.
type Loss struct {
	margin    float64
	hasMargin bool
}

// New creates a margin-ranking triplet loss with the given margin.
func New(margin float64) *Loss {
	return &Loss{margin: margin, hasMargin: true}
}

// NewSoft creates the soft-margin (logistic) variant,
// loss = mean(log(1 + exp(−(dist_an − dist_ap)))).
func NewSoft() *Loss {
	return &Loss{}
}

// Margin returns the configured margin and whether one is set.
func (l *Loss) Margin() (float64, bool) {
	return l.margin, l.hasMargin
}

// Result carries the scalar loss and precision plus per-anchor diagnostics.
// DistAP/DistAN and the selected indices are exposed for logging by the
// caller; nothing consumes them internally.
type Result struct {
	Loss      float64   `json:"loss"`
	Precision float64   `json:"precision"`
	DistAP    []float64 `json:"dist_ap"`
	DistAN    []float64 `json:"dist_an"`
	PosInds   []int     `json:"pos_inds"`
	NegInds   []int     `json:"neg_inds"`
}

// Forward runs the full pipeline: optional L2 normalization, self-distance
// matrix, hard example mining and the loss reduction. Precision is the
// fraction of anchors whose hardest negative is farther than their hardest
// positive (a correctly ordered triplet).
//
// Mined indices are selections, not differentiable quantities; a training
// framework consuming these results must treat them as constants and flow
// gradients through the distances only.
func (l *Loss) Forward(embeddings [][]float32, labels []int, normalizeFeature bool) (*Result, error) {
	if len(embeddings) != len(labels) {
		return nil, fmt.Errorf("got %d embeddings for %d labels: %w", len(embeddings), len(labels), ErrShapeMismatch)
	}

	feat := embeddings
	if normalizeFeature {
		feat = Normalize(feat)
	}

	dist, err := SelfDistances(feat)
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}

	mined, err := HardExampleMining(dist, labels, true)
	if err != nil {
		return nil, fmt.Errorf("hard example mining: %w", err)
	}

	n := len(labels)
	var sum float64
	ordered := 0
	for i := 0; i < n; i++ {
		gap := mined.DistAN[i] - mined.DistAP[i]
		if l.hasMargin {
			if v := l.margin - gap; v > 0 {
				sum += v
			}
		} else {
			sum += softplus(-gap)
		}
		if gap > 0 {
			ordered++
		}
	}

	return &Result{
		Loss:      sum / float64(n),
		Precision: float64(ordered) / float64(n),
		DistAP:    mined.DistAP,
		DistAN:    mined.DistAN,
		PosInds:   mined.PosInds,
		NegInds:   mined.NegInds,
	}, nil
}

// softplus computes log(1 + exp(x)) without overflowing for large |x|.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
