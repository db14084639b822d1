package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/logger"
	"docrag/internal/telemetry"
	"docrag/internal/vectorstore"
)

const (
	upsertBatch = 256
	// extra results fetched so equal scores can be ordered by insertion
	tieSlack = 8
)

var _ vectorstore.Index = (*Index)(nil)

// Index keeps the vector index in Qdrant over its REST API.
// Every rebuild writes a fresh generation collection, then switches to it. The
// previous collection is dropped once no query still reads it. Vectors are
// L2-normalized and scored with Dot.
type Index struct {
	url      string
	apiKey   string
	base     string
	client   *http.Client
	embedder embedding.Embedder
	rec      *vectorstore.Reconciler
	provider string

	mu   sync.Mutex // serializes Add
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	collection string
	texts      []string
	metas      []domain.Metadata
	embedder   embedding.Embedder

	readers atomic.Int64
	retired atomic.Bool
	drop    sync.Once
}

// Config configures the Qdrant connection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New creates an empty Qdrant-backed index. No collection exists until the
// first Add.
func New(cfg Config, e embedding.Embedder, opts vectorstore.Options) (*Index, error) {
	if e == nil {
		return nil, fmt.Errorf("nil embedder: %w", domain.ErrInvalidInput)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension %d: %w", opts.Dimension, domain.ErrInvalidInput)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is empty: %w", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		cfg.Collection = "docrag"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	provider := opts.Provider
	if provider == "" {
		provider = e.Name()
	}
	idx := &Index{
		url:      strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		base:     cfg.Collection,
		client:   &http.Client{Timeout: timeout},
		embedder: e,
		rec:      vectorstore.NewReconciler(opts.Dimension, opts.StrictDimension),
		provider: provider,
	}
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// Add appends texts and rebuilds the whole collection.
func (s *Index) Add(ctx context.Context, texts []string, metas []domain.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%d texts, %d metadata: %w", len(texts), len(metas), domain.ErrLengthMismatch)
	}
	if len(texts) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "index.add", attribute.Int("batch", len(texts)), attribute.String("backend", "qdrant"))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := &snapshot{
		collection: s.base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		texts:      append(append([]string(nil), cur.texts...), texts...),
		metas:      append([]domain.Metadata(nil), cur.metas...),
	}
	for _, m := range metas {
		next.metas = append(next.metas, m.Clone())
	}

	e := s.embedder
	if f, ok := s.embedder.(embedding.Fitter); ok {
		fitted, err := f.Fit(next.texts)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("fit %s: %w", s.embedder.Name(), err)
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
	next.embedder = e

	if err := s.createCollection(ctx, next.collection); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.upsert(ctx, next, vecs); err != nil {
		span.RecordError(err)
		s.dropCollection(next.collection)
		return err
	}

	s.snap.Store(next)
	s.retire(cur)
	telemetry.IndexAdds.Inc()
	logger.Debug("Qdrant collection %s active: %d records", next.collection, len(next.texts))
	return nil
}

// Query returns up to topK records most similar to text.
func (s *Index) Query(ctx context.Context, text string, topK int) ([]domain.Hit, error) {
	snap := s.acquire()
	defer s.release(snap)
	if len(snap.texts) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	ctx, span := telemetry.StartSpan(ctx, "index.query", attribute.Int("top_k", topK), attribute.String("backend", "qdrant"))
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

	req := map[string]any{
		"vector":       q[0],
		"limit":        topK + tieSlack,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Seq      int             `json:"seq"`
				Text     string          `json:"text"`
				Metadata domain.Metadata `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, snap.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	results := resp.Result
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Payload.Seq < results[j].Payload.Seq
	})
	if len(results) > topK {
		results = results[:topK]
	}
	hits := make([]domain.Hit, len(results))
	for i, r := range results {
		meta := r.Payload.Metadata
		if meta == nil {
			meta = domain.Metadata{}
		}
		hits[i] = domain.Hit{Text: r.Payload.Text, Metadata: meta, Score: r.Score}
	}
	return hits, nil
}

// Len returns the number of indexed records.
func (s *Index) Len() int { return len(s.snap.Load().texts) }

// Provider returns the embedding provider identity.
func (s *Index) Provider() string { return s.provider }

// Collection returns the name of the active generation collection.
func (s *Index) Collection() string { return s.snap.Load().collection }

// Stats returns size and reconciliation counters.
func (s *Index) Stats() vectorstore.Stats {
	padded, truncated := s.rec.Counters()
	return vectorstore.Stats{Records: s.Len(), Dimension: s.rec.Dimension(), Padded: padded, Truncated: truncated}
}

// Close detaches the active collection and drops it once in-flight queries
// finish.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retire(s.snap.Swap(&snapshot{}))
	return nil
}

// acquire pins the current snapshot so its collection outlives a concurrent
// Add or Close.
func (s *Index) acquire() *snapshot {
	for {
		snap := s.snap.Load()
		snap.readers.Add(1)
		if s.snap.Load() == snap {
			return snap
		}
		s.release(snap)
	}
}

func (s *Index) release(snap *snapshot) {
	if snap.readers.Add(-1) == 0 && snap.retired.Load() {
		s.dropSnapshot(snap)
	}
}

// retire marks a replaced snapshot; the last reader out drops it.
func (s *Index) retire(snap *snapshot) {
	snap.retired.Store(true)
	if snap.readers.Load() == 0 {
		s.dropSnapshot(snap)
	}
}

func (s *Index) dropSnapshot(snap *snapshot) {
	if snap.collection == "" {
		return
	}
	snap.drop.Do(func() { s.dropCollection(snap.collection) })
}

func (s *Index) createCollection(ctx context.Context, name string) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.rec.Dimension(),
			"distance": "Dot",
		},
	}
	return s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, name), body, nil)
}

func (s *Index) upsert(ctx context.Context, snap *snapshot, vecs [][]float64) error {
	for start := 0; start < len(vecs); start += upsertBatch {
		end := start + upsertBatch
		if end > len(vecs) {
			end = len(vecs)
		}
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":     uuid.NewString(),
				"vector": vecs[i],
				"payload": map[string]any{
					"seq":      i,
					"text":     snap.texts[i],
					"metadata": snap.metas[i],
				},
			})
		}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, snap.collection)
		if err := s.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

// dropCollection is best-effort; a leftover generation only wastes space.
func (s *Index) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.doJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, name), nil, nil); err != nil {
		logger.Debug("drop qdrant collection %s: %v", name, err)
	}
}

func (s *Index) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
