package embedding

import (
	"fmt"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/embedding/random"
	"docrag/internal/logger"
	"docrag/internal/telemetry"
)

// Candidate is one entry in the ranked provider list.
// Build returns an error when the provider is not usable (missing key, ...).
type Candidate struct {
	Name  string
	Build func() (Embedder, error)
}

// SelectOptions controls provider selection.
type SelectOptions struct {
	// Strict fails with domain.ErrEmbeddingUnavailable instead of
	// degrading to random embeddings.
	Strict bool
	// Dimension and Seed configure the random fallback.
	Dimension int
	Seed      int64
	// OnSkip is called for every candidate that could not be built.
	OnSkip func(name string, err error)
}

// Selection is the outcome of Select.
type Selection struct {
	Embedder Embedder
	Provider string
	Degraded bool
}

var degradedOnce sync.Once

// Select walks the candidates in rank order and returns the first one that
// builds. It runs once at construction; call sites never branch on providers.
func Select(candidates []Candidate, opts SelectOptions) (Selection, error) {
	for _, c := range candidates {
		if c.Build == nil {
			continue
		}
		e, err := c.Build()
		if err != nil {
			logger.Debug("Embedding provider %q unavailable: %v", c.Name, err)
			if opts.OnSkip != nil {
				opts.OnSkip(c.Name, err)
			}
			continue
		}
		if e == nil {
			continue
		}
		logger.Info("Embedding provider selected: %s", c.Name)
		telemetry.EmbeddingProvider.WithLabelValues(c.Name).Set(1)
		return Selection{Embedder: e, Provider: c.Name}, nil
	}
	if opts.Strict {
		return Selection{}, fmt.Errorf("select embedding provider from %d candidates: %w", len(candidates), domain.ErrEmbeddingUnavailable)
	}
	degradedOnce.Do(func() {
		logger.Warn("No embedding provider available; using content-blind random embeddings (degraded mode, not for production)")
	})
	telemetry.EmbeddingProvider.WithLabelValues(random.ProviderName).Set(1)
	return Selection{
		Embedder: random.New(opts.Dimension, opts.Seed),
		Provider: random.ProviderName,
		Degraded: true,
	}, nil
}
