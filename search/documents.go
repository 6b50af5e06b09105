package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hudson-advisors/ddq-assistant/knowledge"
)

// DocumentInfo summarizes one indexed document for listings.
type DocumentInfo struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"sourcePath"`
	SourceFile string    `json:"sourceFile"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunkCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Folder     string    `json:"folder,omitempty"`
}

// Catalog reads document metadata from the index, enriched with folder
// provenance from the knowledge graph when one is configured.
type Catalog struct {
	pool   *pgxpool.Pool
	driver neo4j.DriverWithContext
	logger *log.Logger
}

// NewCatalog builds a catalog; driver may be nil.
func NewCatalog(pool *pgxpool.Pool, driver neo4j.DriverWithContext, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}

	return &Catalog{
		pool:   pool,
		driver: driver,
		logger: logger,
	}
}

// ListDocuments returns every indexed document with its chunk count, newest
// first. Graph failures only cost the folder enrichment.
func (c *Catalog) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := c.pool.Query(ctx, `
        SELECT
            dd.id,
            dd.source_path,
            dd.source_file,
            COALESCE(dd.title, ''),
            COUNT(dc.id),
            dd.updated_at
        FROM ddq_documents dd
        LEFT JOIN ddq_chunks dc ON dc.document_id = dd.id
        GROUP BY dd.id, dd.source_path, dd.source_file, dd.title, dd.updated_at
        ORDER BY dd.updated_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentInfo, 0)
	for rows.Next() {
		var doc DocumentInfo
		if err := rows.Scan(&doc.ID, &doc.SourcePath, &doc.SourceFile, &doc.Title, &doc.ChunkCount, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		documents = append(documents, doc)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if c.driver != nil && len(documents) > 0 {
		ids := make([]string, 0, len(documents))
		for _, doc := range documents {
			ids = append(ids, doc.ID)
		}

		folders, folderErr := knowledge.DocumentFolders(ctx, c.driver, ids)
		if folderErr != nil {
			c.logger.Printf("graph folder lookup error: %v", folderErr)
		} else {
			for i := range documents {
				documents[i].Folder = folders[documents[i].ID]
			}
		}
	}

	return documents, nil
}
