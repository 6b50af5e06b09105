package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureIndexSchema creates the document index tables and the pgvector
// extension if they do not exist. The chunk embedding column is sized to the
// configured embedding dimension.
func EnsureIndexSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is not configured")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS ddq_documents (
			id UUID PRIMARY KEY,
			source_path TEXT UNIQUE NOT NULL,
			source_file TEXT NOT NULL,
			title TEXT,
			sha256 TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ddq_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES ddq_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_ddq_chunks_document ON ddq_chunks(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_ddq_chunks_embedding ON ddq_chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

// ClearIndex removes all indexed documents and chunks.
func ClearIndex(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is not configured")
	}
	if _, err := pool.Exec(ctx, "TRUNCATE ddq_chunks, ddq_documents"); err != nil {
		return fmt.Errorf("truncate index tables: %w", err)
	}
	return nil
}
