package embedding

import "context"

// Embedder converts a batch of texts into numeric vectors.
// Implementations must be deterministic for identical input within a process,
// except the random degraded-mode provider.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Fitter is implemented by embedders whose vector space depends on the corpus
// (e.g. TF-IDF). Fit returns an embedder bound to that corpus; the receiver is
// left untouched so earlier fits stay valid for in-flight queries.
type Fitter interface {
	Fit(corpus []string) (Embedder, error)
}
