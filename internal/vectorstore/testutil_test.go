package vectorstore_test

import (
	"context"
)

// TestEmbedder is a mock embedder for testing vectorstore implementations.
// It generates deterministic embeddings based on input text for reproducible tests.
type TestEmbedder struct {
	VectorSize int
}

// EmbedDocuments generates mock embeddings for multiple texts.
func (e *TestEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

// EmbedQuery generates a mock embedding for a single query text.
func (e *TestEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a deterministic normalized embedding based on text hash.
// chromem computes cosine similarity as a dot product, so vectors must be
// unit length.
func (e *TestEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.VectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	if sumSq > 0 {
		norm := float32(1.0) / sqrt32(sumSq)
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	// Newton's method for square root
	z := x / 2
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

// unitVector returns a unit vector along the given axis. Axis vectors are
// exactly normalized and mutually orthogonal, which makes similarity scores
// in tests exact: querying with an axis vector scores its own document 1.0
// and every other axis document 0.0.
func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1.0
	return v
}
