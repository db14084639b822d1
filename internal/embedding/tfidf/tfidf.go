package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"docrag/internal/embedding"
)

// ProviderName identifies the TF-IDF provider.
const ProviderName = "tfidf"

var (
	_ embedding.Embedder = (*Vectorizer)(nil)
	_ embedding.Fitter   = (*Vectorizer)(nil)
	_ embedding.Embedder = (*Model)(nil)
)

// Vectorizer is an unfitted TF-IDF configuration. Fit builds a Model from a
// corpus; the index refits on every add so the vocabulary tracks all records.
type Vectorizer struct {
	maxFeatures  int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewVectorizer creates a vectorizer. maxFeatures <= 0 keeps every term.
func NewVectorizer(maxFeatures int) *Vectorizer {
	return &Vectorizer{
		maxFeatures:  maxFeatures,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (v *Vectorizer) Name() string { return ProviderName }

// Embed fails: an unfitted vectorizer has no vocabulary.
func (v *Vectorizer) Embed(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("tfidf vectorizer not fitted")
}

// Fit builds the vocabulary and IDF values from the provided corpus.
func (v *Vectorizer) Fit(corpus []string) (embedding.Embedder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for TF-IDF fit")
	}
	// Build document and term frequencies
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range v.tokenize(text) {
			tf[tok]++
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.maxFeatures]
	}
	// Create stable ordering for vocabulary
	sort.Strings(terms)

	m := &Model{
		vectorizer: v,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		m.vocabulary[term] = i
		// Smoothed IDF
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return m, nil
}

func (v *Vectorizer) tokenize(text string) []string {
	raw := v.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := v.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Model is a TF-IDF vectorizer fitted to one corpus.
type Model struct {
	vectorizer *Vectorizer
	vocabulary map[string]int
	idf        []float64
}

// Name returns the identifier of this embedder implementation.
func (m *Model) Name() string { return ProviderName }

// Dimension returns the vocabulary size.
func (m *Model) Dimension() int { return len(m.idf) }

// Embed computes L2-normalized TF-IDF vectors. Texts without known terms map
// to the zero vector.
func (m *Model) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = m.embedOne(text)
	}
	return out, nil
}

func (m *Model) embedOne(text string) []float64 {
	vec := make([]float64, len(m.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range m.vectorizer.tokenize(text) {
		if idx, ok := m.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * m.idf[idx]
	}
	// L2 normalize
	norm := 0.0
	for _, x := range vec {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
