package storage

import (
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the only vector width the schema accepts. The embedding
// service produces 768-dimension vectors for both text and code domains.
const EmbeddingDim = 768

// ValidateEmbedding rejects vectors that do not match the schema dimension.
// A nil embedding is valid and stored as SQL NULL.
func ValidateEmbedding(emb []float32) error {
	if emb == nil {
		return nil
	}
	if len(emb) != EmbeddingDim {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(emb), EmbeddingDim)
	}
	return nil
}

// vectorParam converts a float32 slice into a pgvector query parameter.
// Empty or nil slices become NULL so partially embedded chunks still insert.
func vectorParam(emb []float32) any {
	if len(emb) == 0 {
		return nil
	}
	return pgvector.NewVector(emb)
}
