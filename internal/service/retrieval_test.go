package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/embedding/tfidf"
	"docrag/internal/normalize"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
)

// scriptedIndex returns canned hits per canonical text.
type scriptedIndex struct {
	hits    map[string][]domain.Hit
	err     error
	added   []string
	queries []string
}

func (s *scriptedIndex) Add(_ context.Context, texts []string, _ []domain.Metadata) error {
	s.added = append(s.added, texts...)
	return s.err
}

func (s *scriptedIndex) Query(_ context.Context, text string, _ int) ([]domain.Hit, error) {
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[text], nil
}

func (s *scriptedIndex) Len() int                 { return len(s.added) }
func (s *scriptedIndex) Provider() string         { return "scripted" }
func (s *scriptedIndex) Stats() vectorstore.Stats { return vectorstore.Stats{} }

// wordEmbedder is a deterministic bag-of-words embedder over a fixed vocabulary.
type wordEmbedder struct{ vocab []string }

func (w wordEmbedder) Name() string { return "words" }

func (w wordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, len(w.vocab))
		for _, tok := range strings.Fields(text) {
			for j, v := range w.vocab {
				if tok == v {
					vec[j]++
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

func hit(docType, docCode string, score float64) domain.Hit {
	m := domain.Metadata{}
	if docType != "" {
		m[domain.KeyDocType] = docType
	}
	if docCode != "" {
		m[domain.KeyDocCode] = docCode
	}
	return domain.Hit{Metadata: m, Score: score}
}

func meta(docType, docCode string) domain.Metadata {
	return domain.Metadata{domain.KeyDocType: docType, domain.KeyDocCode: docCode}
}

func newScripted(hits map[string][]domain.Hit) (*RetrievalService, *scriptedIndex) {
	idx := &scriptedIndex{hits: hits}
	return NewRetrievalService(idx, nil, Options{}), idx
}

func TestIndexTriplets_NormalizesBeforeAdding(t *testing.T) {
	svc, idx := newScripted(nil)

	err := svc.IndexTriplets(context.Background(),
		[]domain.Triplet{{Subject: "Invoice", Predicate: "Has Value", Object: "$1,200.00"}},
		[]domain.Metadata{meta("INVOICE", "INV001")})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice has_amount <AMOUNT>"}, idx.added)
}

func TestIndexTriplets_LengthMismatch(t *testing.T) {
	svc, _ := newScripted(nil)

	err := svc.IndexTriplets(context.Background(), []domain.Triplet{{Subject: "a"}}, nil)
	assert.ErrorIs(t, err, domain.ErrLengthMismatch)
}

func TestRetrieveByTriplet_GroupsBySummedScore(t *testing.T) {
	svc, _ := newScripted(map[string][]domain.Hit{
		"invoice issued_by acme": {
			hit("BANK_STATEMENT", "BS1", 0.9),
			hit("INVOICE", "INV1", 0.4),
			hit("", "", 0.85),
			hit("INVOICE", "INV2", 0.6),
		},
	})

	res, err := svc.RetrieveByTriplet(context.Background(), domain.Triplet{Subject: "invoice", Predicate: "issued_by", Object: "acme"}, 4)
	require.NoError(t, err)

	// INVOICE 1.0 beats BANK_STATEMENT 0.9; the unlabelled hit is ignored
	assert.Equal(t, domain.Decision{DocType: "INVOICE", DocCode: "INV2"}, res.Decision)
	assert.Len(t, res.Hits, 4)
	assert.Equal(t, "invoice issued_by acme", res.Text)
}

func TestRetrieveByTriplet_TieIsStable(t *testing.T) {
	svc, _ := newScripted(map[string][]domain.Hit{
		"x": {hit("BANK_STATEMENT", "BS1", 0.5), hit("INVOICE", "INV1", 0.5)},
	})

	for i := 0; i < 10; i++ {
		res, err := svc.RetrieveByTriplet(context.Background(), domain.Triplet{Subject: "x"}, 0)
		require.NoError(t, err)
		assert.Equal(t, "BANK_STATEMENT", res.Decision.DocType)
	}
}

func TestRetrieveByTriplet_NoHits(t *testing.T) {
	svc, _ := newScripted(nil)

	res, err := svc.RetrieveByTriplet(context.Background(), domain.Triplet{Subject: "nothing"}, 3)
	require.NoError(t, err)
	assert.True(t, res.Decision.Empty())
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
}

func TestRetrieveByTriplet_IndexError(t *testing.T) {
	svc, idx := newScripted(nil)
	idx.err = errors.New("embedding backend down")

	_, err := svc.RetrieveByTriplet(context.Background(), domain.Triplet{Subject: "x"}, 3)
	assert.ErrorContains(t, err, "embedding backend down")
}

func TestRetrieveByTriplets_Empty(t *testing.T) {
	svc, idx := newScripted(nil)

	d, err := svc.RetrieveByTriplets(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_type": nil, "doc_code": nil}, d.Map())
	assert.Empty(t, idx.queries)
}

func TestRetrieveByTriplets_VoteMassAcrossTriplets(t *testing.T) {
	svc, _ := newScripted(map[string][]domain.Hit{
		"a": {hit("INVOICE", "INV1", 0.5), hit("INVOICE", "INV1", 0.4)},
		"b": {hit("BANK_STATEMENT", "BS1", 0.95)},
		"c": {hit("INVOICE", "INV2", 0.3)},
		"d": nil,
	})

	d, results, err := svc.RetrieveDetailed(context.Background(), []domain.Triplet{
		{Subject: "a"}, {Subject: "b"}, {Subject: "c"}, {Subject: "d"},
	})
	require.NoError(t, err)

	// INVOICE: 0.9 + 0.3 = 1.2 > BANK_STATEMENT: 0.95; INV1 holds 0.9
	assert.Equal(t, domain.Decision{DocType: "INVOICE", DocCode: "INV1"}, d)
	require.Len(t, results, 4)
	assert.True(t, results[3].Decision.Empty())
}

func TestRetrieveByTriplets_UsesTripletTopK(t *testing.T) {
	idx := &scriptedIndex{}
	var gotK []int
	svc := NewRetrievalService(queryRecorder{idx, &gotK}, nil, Options{TripletTopK: 2})

	_, err := svc.RetrieveByTriplets(context.Background(), []domain.Triplet{{Subject: "a"}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, gotK)
}

type queryRecorder struct {
	*scriptedIndex
	k *[]int
}

func (q queryRecorder) Query(ctx context.Context, text string, topK int) ([]domain.Hit, error) {
	*q.k = append(*q.k, topK)
	return q.scriptedIndex.Query(ctx, text, topK)
}

func TestRoundTrip_InvoiceTriplets(t *testing.T) {
	idx, err := memory.New(tfidf.NewVectorizer(0), vectorstore.Options{Dimension: 32})
	require.NoError(t, err)
	svc := NewRetrievalService(idx, normalize.New(normalize.DefaultPredicates()), Options{})
	ctx := context.Background()

	invoice := meta("INVOICE", "INV001")
	require.NoError(t, svc.IndexTriplets(ctx,
		[]domain.Triplet{
			{Subject: "invoice", Predicate: "has_amount", Object: "<AMOUNT>"},
			{Subject: "invoice", Predicate: "issued_by", Object: "organization"},
		},
		[]domain.Metadata{invoice, invoice},
	))

	query := domain.Triplet{Subject: "invoice", Predicate: "issued_by", Object: "organization"}
	res, err := svc.RetrieveByTriplet(ctx, query, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.Decision{DocType: "INVOICE", DocCode: "INV001"}, res.Decision)

	d, err := svc.RetrieveByTriplets(ctx, []domain.Triplet{query})
	require.NoError(t, err)
	assert.Equal(t, domain.Decision{DocType: "INVOICE", DocCode: "INV001"}, d)
}

func TestMonotonicity_MoreMatchingTripletsNeverLowerMass(t *testing.T) {
	idx, err := memory.New(wordEmbedder{vocab: []string{"invoice", "issued_by", "acme", "bank", "statement"}}, vectorstore.Options{Dimension: 5})
	require.NoError(t, err)
	svc := NewRetrievalService(idx, nil, Options{})
	ctx := context.Background()
	query := domain.Triplet{Subject: "invoice", Predicate: "issued_by", Object: "acme"}

	mass := func() float64 {
		res, err := svc.RetrieveByTriplet(ctx, query, 10)
		require.NoError(t, err)
		tally := NewTally(CodeSum)
		for _, h := range res.Hits {
			tally.Add(h.Metadata.DocType(), h.Metadata.DocCode(), h.Score)
		}
		return tally.Mass("INVOICE")
	}

	require.NoError(t, svc.IndexTriplets(ctx,
		[]domain.Triplet{{Subject: "invoice", Predicate: "issued_by", Object: "acme"}, {Subject: "bank", Predicate: "statement"}},
		[]domain.Metadata{meta("INVOICE", "INV1"), meta("BANK_STATEMENT", "BS1")}))
	before := mass()

	require.NoError(t, svc.IndexTriplets(ctx,
		[]domain.Triplet{{Subject: "invoice", Predicate: "issued_by", Object: "globex"}},
		[]domain.Metadata{meta("INVOICE", "INV2")}))
	after := mass()

	assert.Greater(t, after, before)
}

func TestContribution(t *testing.T) {
	assert.Equal(t, flatVote, contribution(nil))
	assert.InDelta(t, 1.3, contribution([]domain.Hit{{Score: 0.9}, {Score: 0.4}}), 1e-9)
	assert.Zero(t, contribution([]domain.Hit{{Score: 0}}))
}
