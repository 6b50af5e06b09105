// Package knowledge maintains the Neo4j provenance graph: one node per
// indexed document, linked to the folder it was ingested from. The graph is
// optional; callers degrade when it is absent.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	ID         string
	Path       string
	File       string
	Title      string
	SHA        string
	Folder     string
	ChunkCount int
}

// SyncDocument upserts the document node and its folder relation.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":          doc.ID,
		"path":        doc.Path,
		"file":        doc.File,
		"title":       doc.Title,
		"sha":         doc.SHA,
		"folder":      doc.Folder,
		"chunk_count": doc.ChunkCount,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.path = $path,
			    d.file = $file,
			    d.title = $title,
			    d.sha256 = $sha,
			    d.chunk_count = $chunk_count,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if doc.Folder != "" {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})-[r:IN_FOLDER]->(:Folder)
				DELETE r
			`, params); err != nil {
				return nil, fmt.Errorf("remove stale folder relation: %w", err)
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})
				MERGE (f:Folder {name: $folder})
				MERGE (d)-[:IN_FOLDER]->(f)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert folder relation: %w", err)
			}
		} else {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})-[r:IN_FOLDER]->(f:Folder)
				DELETE r
				WITH f
				WHERE NOT (f)<-[:IN_FOLDER]-(:Document)
				DETACH DELETE f
			`, params); err != nil {
				return nil, fmt.Errorf("cleanup folder relation: %w", err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	return nil
}

// DocumentFolders returns the folder each document belongs to, keyed by
// document id. Documents without a folder relation are absent from the map.
func DocumentFolders(ctx context.Context, driver neo4j.DriverWithContext, docIDs []string) (map[string]string, error) {
	if driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(docIDs) == 0 {
		return map[string]string{}, nil
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)-[:IN_FOLDER]->(f:Folder)
		WHERE d.id IN $ids
		RETURN d.id AS id, f.name AS folder
	`, map[string]any{"ids": docIDs})
	if err != nil {
		return nil, fmt.Errorf("run folder query: %w", err)
	}

	folders := make(map[string]string, len(docIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		folderVal, _ := record.Get("folder")
		id, ok := idVal.(string)
		if !ok {
			continue
		}
		if folder, ok := folderVal.(string); ok && folder != "" {
			folders[id] = folder
		}
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("folder query result error: %w", err)
	}

	return folders, nil
}

// Purge removes every document and folder node.
func Purge(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (d:Document) DETACH DELETE d",
		"MATCH (f:Folder) DETACH DELETE f",
	}

	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}

	return nil
}
