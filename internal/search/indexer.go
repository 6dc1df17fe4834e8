// Package search indexes completed transcripts into the vector store and
// answers semantic queries over them. Indexing is best-effort from the
// pipeline's point of view: a failed index never fails an extraction.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
	"meetscribe/internal/vectorstore"
)

const defaultLimit = 10

// chunkNamespace seeds deterministic chunk point ids so re-indexing a session
// overwrites its points instead of accumulating duplicates.
var chunkNamespace = uuid.MustParse("4f1c2d8a-0b5e-4a76-9c3d-2e8f6a1b7d90")

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer writes transcript chunks into the vector store.
type Indexer struct {
	embedder   Embedder
	store      vectorstore.VectorStore
	collection string
}

// NewIndexer creates an Indexer writing to the given collection.
func NewIndexer(embedder Embedder, store vectorstore.VectorStore, collection string) *Indexer {
	return &Indexer{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

// IndexTranscript chunks, embeds and upserts one session's transcript.
// Sessions without a transcript are a no-op.
func (i *Indexer) IndexTranscript(ctx context.Context, session *storage.Session) error {
	logger := contextutil.LoggerFromContext(ctx)

	chunks := chunkTranscript(session.Transcript)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for j, chunk := range chunks {
		texts[j] = chunk.Text
	}
	vectors, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed transcript chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]vectorstore.Point, len(chunks))
	for j, chunk := range chunks {
		points[j] = vectorstore.Point{
			ID:  uuid.NewSHA1(chunkNamespace, []byte(session.ID+":chunk:"+strconv.Itoa(chunk.Index))).String(),
			Vec: vectors[j],
			Meta: map[string]any{
				"session_id":  session.ID,
				"user_id":     session.UserID,
				"project_id":  session.EffectiveProjectID(),
				"chunk_index": chunk.Index,
				"text":        chunk.Text,
			},
		}
	}

	if err := i.store.Upsert(ctx, i.collection, points); err != nil {
		return fmt.Errorf("failed to upsert transcript chunks: %w", err)
	}
	logger.InfoContext(ctx, "transcript indexed", "session_id", session.ID, "chunks", len(points))
	return nil
}

// Query is a semantic search request. UserID is mandatory; ProjectID and
// SessionID narrow the scope when set.
type Query struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

// Hit is one scored transcript chunk.
type Hit struct {
	SessionID  string  `json:"sessionId"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Searcher answers semantic queries against the indexed transcripts.
type Searcher struct {
	embedder   Embedder
	store      vectorstore.VectorStore
	collection string
}

// NewSearcher creates a Searcher over the given collection.
func NewSearcher(embedder Embedder, store vectorstore.VectorStore, collection string) *Searcher {
	return &Searcher{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

// Search embeds the query text and returns the best matching chunks within
// the query's scope.
func (s *Searcher) Search(ctx context.Context, query Query) ([]Hit, error) {
	if query.Text == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if query.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Search(ctx, s.collection, vectors[0], limit, vectorstore.Filter{
		UserID:    query.UserID,
		ProjectID: query.ProjectID,
		SessionID: query.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		hit := Hit{Score: result.Score}
		if v, ok := result.Meta["session_id"].(string); ok {
			hit.SessionID = v
		}
		if v, ok := result.Meta["text"].(string); ok {
			hit.Text = v
		}
		switch v := result.Meta["chunk_index"].(type) {
		case int64:
			hit.ChunkIndex = int(v)
		case float64:
			hit.ChunkIndex = int(v)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
