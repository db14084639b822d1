package domain

import "errors"

var (
	// ErrDimensionMismatch is returned in strict mode when an embedding's width
	// differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable is returned in strict mode when no embedding
	// provider could be selected.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrLengthMismatch indicates parallel slices of different lengths.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrInvalidInput indicates malformed configuration or arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
