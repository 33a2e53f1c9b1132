// Package embedder turns query text into vectors for retrieval. The
// embedding model itself is an external collaborator; only the
// text-to-vector contract lives here.
package embedder

import "context"

// Embedder converts text into a dense vector. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector width, 0 when unknown until the
	// first call.
	Dimensions() int
}
