// Package retrieval is a nearest-neighbor index over row text embeddings.
// The index is built once and is read-only afterwards; a changed table needs
// a full rebuild.
package retrieval

import (
	"context"
	"errors"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyEmbedding    = errors.New("embedder returned no vector")
)

// Embedder maps texts to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Hit is a single search result.
type Hit struct {
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}
