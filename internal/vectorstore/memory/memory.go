package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/logger"
	"docrag/internal/telemetry"
	"docrag/internal/vectorstore"
)

var _ vectorstore.Index = (*Index)(nil)

// Index is an in-memory vector index using brute-force inner product over
// L2-normalized vectors.
type Index struct {
	mu       sync.Mutex // serializes Add
	snap     atomic.Pointer[snapshot]
	base     embedding.Embedder
	rec      *vectorstore.Reconciler
	provider string
}

// snapshot is immutable once published.
type snapshot struct {
	texts    []string
	metas    []domain.Metadata
	vectors  [][]float64
	embedder embedding.Embedder
}

// New creates an empty index over the given embedder. Embedders that also
// implement embedding.Fitter are refitted to the full corpus on every Add.
func New(e embedding.Embedder, opts vectorstore.Options) (*Index, error) {
	if e == nil {
		return nil, fmt.Errorf("nil embedder: %w", domain.ErrInvalidInput)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension %d: %w", opts.Dimension, domain.ErrInvalidInput)
	}
	provider := opts.Provider
	if provider == "" {
		provider = e.Name()
	}
	idx := &Index{
		base:     e,
		rec:      vectorstore.NewReconciler(opts.Dimension, opts.StrictDimension),
		provider: provider,
	}
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// Add appends texts with their metadata and rebuilds the index.
func (s *Index) Add(ctx context.Context, texts []string, metas []domain.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%d texts, %d metadata: %w", len(texts), len(metas), domain.ErrLengthMismatch)
	}
	if len(texts) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "index.add", attribute.Int("batch", len(texts)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := &snapshot{
		texts: make([]string, 0, len(cur.texts)+len(texts)),
		metas: make([]domain.Metadata, 0, len(cur.metas)+len(metas)),
	}
	next.texts = append(append(next.texts, cur.texts...), texts...)
	next.metas = append(next.metas, cur.metas...)
	for _, m := range metas {
		next.metas = append(next.metas, m.Clone())
	}

	e := s.base
	if f, ok := s.base.(embedding.Fitter); ok {
		fitted, err := f.Fit(next.texts)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("fit %s: %w", s.base.Name(), err)
		}
		e = fitted
	}
	raw, err := e.Embed(ctx, next.texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embed %d texts: %w", len(next.texts), err)
	}
	if len(raw) != len(next.texts) {
		return fmt.Errorf("%s returned %d embeddings for %d texts: %w", e.Name(), len(raw), len(next.texts), domain.ErrLengthMismatch)
	}
	vecs, err := s.rec.Prepare(raw)
	if err != nil {
		span.RecordError(err)
		return err
	}
	next.vectors = vecs
	next.embedder = e

	s.snap.Store(next)
	telemetry.IndexAdds.Inc()
	logger.Debug("Index rebuilt: %d records (+%d)", len(next.texts), len(texts))
	return nil
}

// Query returns up to topK records most similar to text.
func (s *Index) Query(ctx context.Context, text string, topK int) ([]domain.Hit, error) {
	snap := s.snap.Load()
	if len(snap.texts) == 0 {
		return nil, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "index.query", attribute.Int("top_k", topK))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.QueryDuration.Observe(time.Since(start).Seconds()) }()
	telemetry.Queries.Inc()

	raw, err := snap.embedder.Embed(ctx, []string{text})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("%s returned %d embeddings for 1 query: %w", snap.embedder.Name(), len(raw), domain.ErrLengthMismatch)
	}
	q, err := s.rec.Prepare(raw)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query: %w", err)
	}

	idxs, scores := vectorstore.Rank(q[0], snap.vectors, topK)
	hits := make([]domain.Hit, len(idxs))
	for i, j := range idxs {
		hits[i] = domain.Hit{Text: snap.texts[j], Metadata: snap.metas[j].Clone(), Score: scores[i]}
	}
	return hits, nil
}

// Len returns the number of indexed records.
func (s *Index) Len() int { return len(s.snap.Load().texts) }

// Provider returns the embedding provider identity.
func (s *Index) Provider() string { return s.provider }

// Stats returns size and reconciliation counters.
func (s *Index) Stats() vectorstore.Stats {
	padded, truncated := s.rec.Counters()
	return vectorstore.Stats{
		Records:   s.Len(),
		Dimension: s.rec.Dimension(),
		Padded:    padded,
		Truncated: truncated,
	}
}
