// Package random provides the degraded-mode embedder used when no real
// embedding provider is available. Vectors are drawn from a seeded PRNG and
// ignore the input text entirely, so similarity scores carry no meaning.
// It exists only so the system stays runnable without external dependencies.
package random

import (
	"context"
	"math/rand"
	"sync"
)

// ProviderName identifies the random provider.
const ProviderName = "random"

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 384

// Embedder draws uniform [0,1) vectors from a seeded source.
type Embedder struct {
	mu        sync.Mutex
	rng       *rand.Rand
	dimension int
}

// New creates a random embedder. The same seed yields the same vector stream.
func New(dimension int, seed int64) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{rng: rand.New(rand.NewSource(seed)), dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return ProviderName }

// Dimension returns the width of produced vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns one fresh random vector per input text.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]float64, len(texts))
	for i := range texts {
		vec := make([]float64, e.dimension)
		for j := range vec {
			vec[j] = e.rng.Float64()
		}
		out[i] = vec
	}
	return out, nil
}
