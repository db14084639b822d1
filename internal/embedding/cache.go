package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Cached memoizes a deterministic embedder by text. The index re-embeds its
// whole history on every add, so without this a remote provider would be asked
// for the same vectors again and again.
type Cached struct {
	inner Embedder
	mu    sync.RWMutex
	cache map[string][]float64
}

// NewCached wraps inner with an in-memory cache.
func NewCached(inner Embedder) *Cached {
	return &Cached{inner: inner, cache: make(map[string][]float64)}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string { return c.inner.Name() }

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Embed returns cached vectors and asks the wrapped embedder only for misses.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	seen := make(map[string]int)

	c.mu.RLock()
	for i, text := range texts {
		if vec, ok := c.cache[cacheKey(text)]; ok {
			out[i] = vec
			continue
		}
		if _, dup := seen[text]; !dup {
			seen[text] = len(missing)
			missing = append(missing, text)
		}
		missingIdx = append(missingIdx, i)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", c.inner.Name(), len(vecs), len(missing))
	}

	c.mu.Lock()
	for j, text := range missing {
		c.cache[cacheKey(text)] = vecs[j]
	}
	c.mu.Unlock()

	for _, i := range missingIdx {
		out[i] = vecs[seen[texts[i]]]
	}
	return out, nil
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
