package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks meetscribe/internal/vectorstore VectorStore

import "context"

// Point represents a transcript chunk vector with its payload.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a scored hit from a similarity search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// Filter narrows a search to one user's transcripts, optionally to a project
// or a single session.
type Filter struct {
	UserID    string
	ProjectID string
	SessionID string
}

// VectorStore defines the interface for transcript vector operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search constrained by the filter.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// EnsureCollection creates the collection if needed and validates its
	// vector size otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
}
