package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"docrag/internal/domain"
	"docrag/internal/normalize"
	"docrag/internal/telemetry"
	"docrag/internal/vectorstore"
)

// DefaultTripletTopK is the per-triplet depth used when voting across triplets.
const DefaultTripletTopK = 3

// flatVote is the contribution of a labelled triplet result that carries no
// hits. RetrieveByTriplet never produces one (no hits means no label); it
// covers results assembled by callers that label without similarity hits.
const flatVote = 1.0

// Options configures the retrieval service.
type Options struct {
	// TopK is used by RetrieveByTriplet callers that pass topK <= 0.
	TopK int
	// TripletTopK is the per-triplet depth used by RetrieveByTriplets.
	TripletTopK int
}

// RetrievalService indexes normalized triplets and votes on document labels.
type RetrievalService struct {
	index      vectorstore.Index
	normalizer *normalize.Normalizer
	topK       int
	tripletK   int
}

// NewRetrievalService wires the service over an index and a normalizer.
func NewRetrievalService(index vectorstore.Index, normalizer *normalize.Normalizer, opts Options) *RetrievalService {
	if normalizer == nil {
		normalizer = normalize.New(normalize.DefaultPredicates())
	}
	if opts.TopK <= 0 {
		opts.TopK = vectorstore.DefaultTopK
	}
	if opts.TripletTopK <= 0 {
		opts.TripletTopK = DefaultTripletTopK
	}
	return &RetrievalService{index: index, normalizer: normalizer, topK: opts.TopK, tripletK: opts.TripletTopK}
}

// Index returns the underlying vector index.
func (s *RetrievalService) Index() vectorstore.Index { return s.index }

// Normalizer returns the normalizer used for indexing and queries.
func (s *RetrievalService) Normalizer() *normalize.Normalizer { return s.normalizer }

// Texts returns the canonical texts for triplets.
func (s *RetrievalService) Texts(triplets []domain.Triplet) []string {
	texts := make([]string, len(triplets))
	for i, t := range triplets {
		texts[i] = s.normalizer.Text(t)
	}
	return texts
}

// IndexTriplets normalizes triplets and adds them with their metadata.
func (s *RetrievalService) IndexTriplets(ctx context.Context, triplets []domain.Triplet, metas []domain.Metadata) error {
	if len(triplets) != len(metas) {
		return fmt.Errorf("%d triplets, %d metadata: %w", len(triplets), len(metas), domain.ErrLengthMismatch)
	}
	if err := s.index.Add(ctx, s.Texts(triplets), metas); err != nil {
		return fmt.Errorf("index triplets: %w", err)
	}
	return nil
}

// RetrieveByTriplet queries the index for one triplet. Hits are grouped by
// doc_type with summed scores; the best group wins and its doc_code is the
// one with the highest single score.
func (s *RetrievalService) RetrieveByTriplet(ctx context.Context, t domain.Triplet, topK int) (domain.TripletResult, error) {
	if topK <= 0 {
		topK = s.topK
	}
	text := s.normalizer.Text(t)
	res := domain.TripletResult{Triplet: t, Text: text, Hits: []domain.Hit{}}

	hits, err := s.index.Query(ctx, text, topK)
	if err != nil {
		return res, fmt.Errorf("retrieve %q: %w", text, err)
	}
	if len(hits) == 0 {
		return res, nil
	}
	tally := NewTally(CodeMax)
	for _, h := range hits {
		tally.Add(h.Metadata.DocType(), h.Metadata.DocCode(), h.Score)
	}
	res.Hits = hits
	res.Decision = tally.Decision()
	return res, nil
}

// RetrieveByTriplets votes across the triplets of one summary.
func (s *RetrievalService) RetrieveByTriplets(ctx context.Context, triplets []domain.Triplet) (domain.Decision, error) {
	d, _, err := s.RetrieveDetailed(ctx, triplets)
	return d, err
}

// RetrieveDetailed is RetrieveByTriplets that also returns every per-triplet
// result, including those that cast no vote.
func (s *RetrievalService) RetrieveDetailed(ctx context.Context, triplets []domain.Triplet) (domain.Decision, []domain.TripletResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "retrieve.triplets", attribute.Int("triplets", len(triplets)))
	defer span.End()

	results := make([]domain.TripletResult, 0, len(triplets))
	tally := NewTally(CodeSum)
	for _, t := range triplets {
		r, err := s.RetrieveByTriplet(ctx, t, s.tripletK)
		if err != nil {
			span.RecordError(err)
			return domain.Decision{}, results, err
		}
		results = append(results, r)
		if r.Decision.DocType == "" {
			continue
		}
		tally.Add(r.Decision.DocType, r.Decision.DocCode, contribution(r.Hits))
	}
	d := tally.Decision()
	span.SetAttributes(attribute.String("doc_type", d.DocType), attribute.String("doc_code", d.DocCode))
	return d, results, nil
}

func contribution(hits []domain.Hit) float64 {
	if len(hits) == 0 {
		return flatVote
	}
	sum := 0.0
	for _, h := range hits {
		sum += h.Score
	}
	return sum
}
