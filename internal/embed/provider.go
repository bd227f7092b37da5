// Package embed generates fixed-size embedding vectors for rule keywords and
// document tokens, and provides the vector math used by matching.
package embed

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyInput is returned when the text to embed is empty after
	// normalization.
	ErrEmptyInput = errors.New("empty input")
	// ErrEmbeddingFailed wraps model-level failures.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// Provider turns a text into a fixed-size numeric vector. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Embed returns the L2-normalized embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector size produced by this provider.
	Dimension() int
	// Close releases model resources.
	Close() error
}

// normalizeInput lower-cases and trims the text before embedding so that
// "Invoice" and " invoice " share a vector.
func normalizeInput(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
