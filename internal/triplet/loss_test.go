package triplet

import (
	"errors"
	"math"
	"testing"
)

func TestLossForward_TwoClusterScenario(t *testing.T) {
	emb := [][]float32{{0, 0}, {0, 1}, {5, 5}, {5, 6}}
	labels := []int{0, 0, 1, 1}

	res, err := New(0.3).Forward(emb, labels, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(res.DistAP[0]-1) > 1e-5 {
		t.Errorf("DistAP[0] = %f, want 1", res.DistAP[0])
	}
	if math.Abs(res.DistAN[0]-math.Sqrt(50)) > 1e-5 {
		t.Errorf("DistAN[0] = %f, want sqrt(50)", res.DistAN[0])
	}

	// Every anchor's nearest other-identity point is far beyond its own
	// cluster, so every triplet is correctly ordered.
	if res.Precision != 1.0 {
		t.Errorf("precision = %f, want 1.0", res.Precision)
	}

	// All gaps exceed the margin, so the hinge is inactive everywhere.
	if res.Loss != 0 {
		t.Errorf("loss = %f, want 0", res.Loss)
	}
}

func TestLossForward_MarginHinge(t *testing.T) {
	// Two identities on a line; gaps small enough to keep the hinge active.
	emb := [][]float32{{0}, {1}, {1.5}, {2.5}}
	labels := []int{0, 0, 1, 1}

	res, err := New(0.3).Forward(emb, labels, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Anchor 0: dist_ap=1 (to 1), dist_an=1.5 (to 1.5), gap 0.5 ≥ margin → 0.
	// Anchor 1: dist_ap=1, dist_an=0.5, hinge = 0.3 − (0.5−1) = 0.8.
	// Anchor 2: dist_ap=1, dist_an=0.5, hinge 0.8. Anchor 3: gap 1.5−1 ≥ margin → 0.
	want := (0 + 0.8 + 0.8 + 0) / 4
	if math.Abs(res.Loss-want) > 1e-5 {
		t.Errorf("loss = %f, want %f", res.Loss, want)
	}
	if math.Abs(res.Precision-0.5) > 1e-9 {
		t.Errorf("precision = %f, want 0.5", res.Precision)
	}
}

func TestLossForward_MonotoneInGap(t *testing.T) {
	// As the negative cluster moves away, dist_an − dist_ap grows and the
	// margin loss must not increase, flooring at 0 past the margin.
	labels := []int{0, 0, 1, 1}
	loss := New(0.3)

	prev := math.Inf(1)
	floored := false
	for _, sep := range []float32{1.0, 1.2, 1.5, 2.0, 3.0, 6.0} {
		emb := [][]float32{{0}, {1}, {sep}, {sep + 1}}
		res, err := loss.Forward(emb, labels, false)
		if err != nil {
			t.Fatalf("sep %f: %v", sep, err)
		}
		if res.Loss > prev+1e-9 {
			t.Errorf("loss increased from %f to %f at separation %f", prev, res.Loss, sep)
		}
		prev = res.Loss
		if res.Loss == 0 {
			floored = true
		}
	}
	if !floored {
		t.Error("loss never floored at 0 with a wide gap")
	}
}

func TestLossForward_SoftMargin(t *testing.T) {
	emb := [][]float32{{0}, {1}, {1.5}, {2.5}}
	labels := []int{0, 0, 1, 1}

	res, err := NewSoft().Forward(emb, labels, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// softplus(dist_ap − dist_an) per anchor:
	// gaps are +0.5, −0.5, −0.5, +0.5.
	want := (softplus(-0.5) + softplus(0.5) + softplus(0.5) + softplus(-0.5)) / 4
	if math.Abs(res.Loss-want) > 1e-5 {
		t.Errorf("loss = %f, want %f", res.Loss, want)
	}

	// Soft margin never floors at exactly zero.
	if res.Loss <= 0 {
		t.Errorf("soft-margin loss = %f, want > 0", res.Loss)
	}
}

func TestLossForward_NormalizeFeature(t *testing.T) {
	// Same directions at different magnitudes collapse under normalization.
	emb := [][]float32{{1, 0}, {10, 0}, {0, 1}, {0, 20}}
	labels := []int{0, 0, 1, 1}

	res, err := New(0.3).Forward(emb, labels, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// After normalization positives coincide, so dist_ap ≈ 0 and
	// dist_an = sqrt(2) between unit axes.
	if res.DistAP[0] > 1e-5 {
		t.Errorf("DistAP[0] = %f, want ≈0", res.DistAP[0])
	}
	if math.Abs(res.DistAN[0]-math.Sqrt2) > 1e-5 {
		t.Errorf("DistAN[0] = %f, want sqrt(2)", res.DistAN[0])
	}
	if res.Precision != 1.0 {
		t.Errorf("precision = %f, want 1.0", res.Precision)
	}
}

func TestLossForward_PrecisionRange(t *testing.T) {
	emb := [][]float32{
		{0, 0}, {4, 4}, // identity 0 spread wide
		{0.1, 0.1}, {4.1, 4.1}, // identity 1 interleaved
	}
	labels := []int{0, 0, 1, 1}

	res, err := New(0.3).Forward(emb, labels, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Precision < 0 || res.Precision > 1 {
		t.Errorf("precision %f out of [0,1]", res.Precision)
	}
}

func TestLossForward_Errors(t *testing.T) {
	loss := New(0.3)

	if _, err := loss.Forward([][]float32{{1, 2}}, []int{0, 1}, false); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for length mismatch, got %v", err)
	}
	if _, err := loss.Forward([][]float32{{1}, {2}}, []int{3, 3}, false); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates for single-identity batch, got %v", err)
	}
}

func TestSoftplus_Stable(t *testing.T) {
	if v := softplus(1000); math.IsInf(v, 0) || math.Abs(v-1000) > 1e-6 {
		t.Errorf("softplus(1000) = %f, want ≈1000", v)
	}
	if v := softplus(-1000); v != 0 {
		t.Errorf("softplus(-1000) = %g, want 0", v)
	}
	if v := softplus(0); math.Abs(v-math.Ln2) > 1e-12 {
		t.Errorf("softplus(0) = %f, want ln 2", v)
	}
}
