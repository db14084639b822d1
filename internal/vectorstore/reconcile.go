package vectorstore

import (
	"fmt"
	"math"
	"sync/atomic"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/telemetry"
)

// Reconciliation actions.
const (
	ActionNone     = ""
	ActionPad      = "pad"
	ActionTruncate = "truncate"
)

// Reconcile fits vec to dim. Narrower vectors are zero-padded and wider ones
// truncated. In strict mode any mismatch is an error.
func Reconcile(vec []float64, dim int, strict bool) ([]float64, string, error) {
	switch {
	case len(vec) == dim:
		return vec, ActionNone, nil
	case strict:
		return nil, ActionNone, fmt.Errorf("got width %d, index dimension %d: %w", len(vec), dim, domain.ErrDimensionMismatch)
	case len(vec) < dim:
		out := make([]float64, dim)
		copy(out, vec)
		return out, ActionPad, nil
	default:
		out := make([]float64, dim)
		copy(out, vec[:dim])
		return out, ActionTruncate, nil
	}
}

// Reconciler applies Reconcile and L2 normalization to embedding batches and
// keeps per-index counters.
type Reconciler struct {
	dimension int
	strict    bool
	padded    atomic.Int64
	truncated atomic.Int64
}

// NewReconciler creates a reconciler for a fixed dimension.
func NewReconciler(dimension int, strict bool) *Reconciler {
	return &Reconciler{dimension: dimension, strict: strict}
}

// Dimension returns the target width.
func (r *Reconciler) Dimension() int { return r.dimension }

// Prepare reconciles and L2-normalizes every vector in a fresh slice.
func (r *Reconciler) Prepare(vecs [][]float64) ([][]float64, error) {
	out := make([][]float64, len(vecs))
	truncated := 0
	for i, v := range vecs {
		fitted, action, err := Reconcile(v, r.dimension, r.strict)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		switch action {
		case ActionPad:
			r.padded.Add(1)
			telemetry.Reconciled.WithLabelValues(ActionPad).Inc()
		case ActionTruncate:
			truncated++
			r.truncated.Add(1)
			telemetry.Reconciled.WithLabelValues(ActionTruncate).Inc()
		}
		if action == ActionNone {
			fitted = append([]float64(nil), fitted...)
		}
		NormalizeL2(fitted)
		out[i] = fitted
	}
	if truncated > 0 {
		logger.Warn("Truncated %d embedding(s) to index dimension %d; similarity is lossy", truncated, r.dimension)
	}
	return out, nil
}

// Counters returns the number of padded and truncated vectors seen so far.
func (r *Reconciler) Counters() (padded, truncated int64) {
	return r.padded.Load(), r.truncated.Load()
}

// NormalizeL2 scales v to unit length in place. Zero vectors are left as is.
func NormalizeL2(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
