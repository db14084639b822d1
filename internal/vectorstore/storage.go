// Package vectorstore defines the similarity index over canonical triplet
// texts and the helpers shared by its implementations.
package vectorstore

import (
	"context"

	"docrag/internal/domain"
)

// DefaultTopK is used when a query asks for topK <= 0.
const DefaultTopK = 5

// Index embeds appended texts and answers nearest-neighbour queries.
//
// Add re-embeds the whole accumulated history and swaps the rebuilt state in
// atomically; concurrent queries see either the state before or after an add.
type Index interface {
	Add(ctx context.Context, texts []string, metas []domain.Metadata) error
	Query(ctx context.Context, text string, topK int) ([]domain.Hit, error)
	Len() int
	Provider() string
	Stats() Stats
}

// Options configures an index implementation.
type Options struct {
	// Dimension is the fixed embedding width of the index.
	Dimension int
	// StrictDimension fails on width mismatches instead of padding/truncating.
	StrictDimension bool
	// Provider names the selected embedding provider. Defaults to the
	// embedder's Name().
	Provider string
}

// Stats reports index size and reconciliation counters.
type Stats struct {
	Records   int   `json:"records"`
	Dimension int   `json:"dimension"`
	Padded    int64 `json:"padded"`
	Truncated int64 `json:"truncated"`
}
