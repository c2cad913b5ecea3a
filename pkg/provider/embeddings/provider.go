// Package embeddings defines the Provider interface for vector embedding
// backends. The semantic knowledge index uses these vectors to retrieve the
// player records closest in meaning to a commentary question, where lexical
// overlap alone falls short.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend. All vectors
// produced by one Provider instance share the dimensionality reported by
// Dimensions; vectors from different instances must not be mixed in one
// similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text. The text is
	// forwarded verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider call. The result has the same
	// length and order as texts. On error the whole result is nil; partial
	// results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// checking that an existing index was built with the same model.
	ModelID() string
}
