// Package vector abstracts the document vector store behind a minimal
// search/upsert contract. The store itself is an external collaborator;
// the gateway only searches it.
package vector

import "context"

// Result is a single similarity hit.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Provider is the vector store contract.
type Provider interface {
	// Upsert adds or updates a document with its pre-computed embedding.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK most similar documents, descending by score.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// Count reports the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	Name() string

	Close() error
}
