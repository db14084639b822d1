package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fit(t *testing.T, v *Vectorizer, corpus ...string) *Model {
	t.Helper()
	e, err := v.Fit(corpus)
	require.NoError(t, err)
	m, ok := e.(*Model)
	require.True(t, ok)
	return m
}

func TestFit_EmptyCorpus(t *testing.T) {
	_, err := NewVectorizer(0).Fit(nil)
	assert.Error(t, err)
}

func TestVectorizer_EmbedBeforeFit(t *testing.T) {
	_, err := NewVectorizer(0).Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestModel_VocabularyIgnoresStopwordsAndDigits(t *testing.T) {
	m := fit(t, NewVectorizer(0), "invoice issued_by organization", "the invoice has_amount <AMOUNT> 123")

	// invoice, issued, organization, has, amount ("by", "the" are stopwords)
	assert.Equal(t, 5, m.Dimension())
}

func TestModel_EmbedIsNormalized(t *testing.T) {
	m := fit(t, NewVectorizer(0), "invoice issued_by organization", "bank statement shows withdrawal")

	vecs, err := m.Embed(context.Background(), []string{"invoice issued_by organization"})
	require.NoError(t, err)

	norm := 0.0
	for _, x := range vecs[0] {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestModel_UnknownTermsGiveZeroVector(t *testing.T) {
	m := fit(t, NewVectorizer(0), "invoice issued_by organization")

	vecs, err := m.Embed(context.Background(), []string{"zebra", ""})
	require.NoError(t, err)

	for _, v := range vecs {
		for _, x := range v {
			assert.Zero(t, x)
		}
	}
}

func TestModel_SameTextSameVector(t *testing.T) {
	m := fit(t, NewVectorizer(0), "invoice issued_by organization", "leave request submitted")

	vecs, err := m.Embed(context.Background(), []string{"leave request submitted", "leave request submitted"})
	require.NoError(t, err)

	assert.Equal(t, vecs[0], vecs[1])
}

func TestFit_MaxFeaturesKeepsMostFrequent(t *testing.T) {
	m := fit(t, NewVectorizer(2), "invoice invoice amount", "invoice amount zebra", "yak")

	assert.Equal(t, 2, m.Dimension())
	_, hasInvoice := m.vocabulary["invoice"]
	_, hasAmount := m.vocabulary["amount"]
	assert.True(t, hasInvoice)
	assert.True(t, hasAmount)
}

func TestFit_DoesNotMutateEarlierModels(t *testing.T) {
	v := NewVectorizer(0)
	first := fit(t, v, "invoice")
	second := fit(t, v, "invoice", "bank statement")

	assert.Equal(t, 1, first.Dimension())
	assert.Equal(t, 3, second.Dimension())
}
