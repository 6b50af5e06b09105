package search

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hudson-advisors/ddq-assistant/embeddings"
)

const defaultLimit = 3

type Service struct {
	store    VectorStore
	embedder embeddings.Embedder
	logger   *log.Logger
}

func NewService(store VectorStore, embedder embeddings.Embedder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Search embeds the query and returns the top ranked snippets by descending
// relevance, along with the total chunk count held by the index.
func (s *Service) Search(ctx context.Context, query string, limit int) (Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Results{}, fmt.Errorf("query cannot be empty")
	}
	if s.embedder == nil {
		return Results{}, fmt.Errorf("embedder is not configured")
	}
	if s.store == nil {
		return Results{}, fmt.Errorf("vector store is not configured")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Results{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return Results{}, fmt.Errorf("embedder returned no vectors")
	}

	chunks, err := s.store.SimilarChunks(ctx, vectors[0], limit)
	if err != nil {
		return Results{}, fmt.Errorf("vector search: %w", err)
	}

	count, err := s.store.ChunkCount(ctx)
	if err != nil {
		// The total is informational; the snippets are still usable.
		s.logger.Printf("chunk count error: %v", err)
		count = int64(len(chunks))
	}

	snippets := make([]Snippet, 0, len(chunks))
	for _, chunk := range chunks {
		snippets = append(snippets, toSnippet(chunk))
	}

	return Results{Count: count, Results: snippets}, nil
}

func toSnippet(chunk ChunkResult) Snippet {
	title := strings.TrimSpace(chunk.Title)
	if title == "" {
		title = "Untitled"
	}

	return Snippet{
		ID:         chunk.ChunkID,
		Title:      title,
		Content:    chunk.Content,
		Source:     chunk.SourcePath,
		SourceFile: chunk.SourceFile,
		Score:      chunk.Score,
	}
}
