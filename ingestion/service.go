package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	stdpath "path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pgvector/pgvector-go"

	"github.com/hudson-advisors/ddq-assistant/database"
	"github.com/hudson-advisors/ddq-assistant/embeddings"
	"github.com/hudson-advisors/ddq-assistant/knowledge"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// txBeginner is the slice of pgxpool.Pool the ingest transaction needs.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Service struct {
	pool      *pgxpool.Pool
	db        txBeginner
	embedder  embeddings.Embedder
	logger    *log.Logger
	dimension int

	// sync pushes document provenance to the knowledge graph; nil skips it.
	sync func(ctx context.Context, doc knowledge.Document) error
}

// NewService wires the ingestion pipeline. The neo4j driver may be nil, in
// which case provenance sync is skipped.
func NewService(pool *pgxpool.Pool, driver neo4j.DriverWithContext, embedder embeddings.Embedder, logger *log.Logger, dimension int) *Service {
	if logger == nil {
		logger = log.Default()
	}

	s := &Service{
		pool:      pool,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
	}
	if pool != nil {
		s.db = pool
	}
	if driver != nil {
		s.sync = func(ctx context.Context, doc knowledge.Document) error {
			return knowledge.SyncDocument(ctx, driver, doc)
		}
	}
	return s
}

// IngestDirectory walks dir and indexes every supported document beneath it.
// Individual file failures are logged and skipped so one bad document cannot
// abort the run.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if err := database.EnsureIndexSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(path) != FormatUnknown {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk data directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no supported documents found in %s", dir)
		return nil
	}

	for _, path := range entries {
		if err := s.ingestFile(ctx, dir, path); err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
		}
	}

	return nil
}

func (s *Service) ingestFile(ctx context.Context, root, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	relPath, relErr := filepath.Rel(root, path)
	if relErr != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	folder := stdpath.Dir(relPath)
	if folder == "." || folder == "/" {
		folder = ""
	}

	parser := ParserFor(DetectFormat(path))
	if parser == nil {
		return fmt.Errorf("unsupported document format: %s", path)
	}

	parsed, err := parser.Parse(DocumentPayload{Path: relPath, Data: data})
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	if len(parsed.Chunks) == 0 {
		s.logger.Printf("skip empty document %s", path)
		return nil
	}

	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	vectors, err := s.embedder.Embed(ctx, parsed.Chunks)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if len(vectors) != len(parsed.Chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(parsed.Chunks), len(vectors))
	}

	if s.db == nil {
		return fmt.Errorf("postgres pool is not configured")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sourceFile := stdpath.Base(relPath)
	docID, inserted, err := storeDocument(ctx, tx, relPath, sourceFile, parsed.Title, hashHex, parsed.Chunks, vectors)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Printf("rollback error: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// From here the index state is durable; graph sync failures must not
	// touch the transaction.

	if inserted == 0 {
		s.logger.Printf("no updates required for %s", relPath)
		return nil
	}

	if s.sync != nil {
		doc := knowledge.Document{
			ID:         docID.String(),
			Path:       relPath,
			File:       sourceFile,
			Title:      parsed.Title,
			SHA:        hashHex,
			Folder:     folder,
			ChunkCount: inserted,
		}

		if err := s.sync(ctx, doc); err != nil {
			return fmt.Errorf("sync knowledge graph: %w", err)
		}
	}

	s.logger.Printf("ingested %s (%d chunks)", relPath, inserted)
	return nil
}

// storeDocument runs the transactional part of one ingest: upsert the
// document row and, when its content hash changed, replace its chunks. The
// caller owns commit and rollback.
func storeDocument(ctx context.Context, tx pgx.Tx, path, file, title, sha string, chunks []string, vectors [][]float32) (uuid.UUID, int, error) {
	docID, changed, err := upsertDocument(ctx, tx, path, file, title, sha)
	if err != nil {
		return uuid.Nil, 0, err
	}

	if !changed {
		return docID, 0, nil
	}

	if _, err := tx.Exec(ctx, "DELETE FROM ddq_chunks WHERE document_id = $1", docID); err != nil {
		return uuid.Nil, 0, fmt.Errorf("clear existing chunks: %w", err)
	}

	inserted := 0
	for idx, text := range chunks {
		vec := pgvector.NewVector(vectors[idx])
		if _, err := tx.Exec(ctx, `
			INSERT INTO ddq_chunks (id, document_id, chunk_index, content, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		`, uuid.New(), docID, idx, text, vec); err != nil {
			return uuid.Nil, 0, fmt.Errorf("insert chunk %d: %w", idx, err)
		}
		inserted++
	}

	return docID, inserted, nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, path, file, title, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM ddq_documents WHERE source_path = $1", path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			_, execErr := tx.Exec(ctx, `
				INSERT INTO ddq_documents (id, source_path, source_file, title, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			`, newID, path, file, title, sha)
			if execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ddq_documents
		SET source_file = $2,
		    title = $3,
		    sha256 = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, file, title, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}

// ExtractTitle returns the first markdown heading, or fallback when the
// content has none.
func ExtractTitle(content, fallback string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

// ChunkText splits content into paragraph-aligned chunks of roughly target
// bytes, carrying the last paragraph over as overlap between neighbours.
func ChunkText(content string, target, overlap int) []string {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	paragraphs := strings.Split(clean, "\n\n")
	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, paragraph := range paragraphs {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}

		paragraphLen := len(p)
		if currentLen+paragraphLen > target && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			if overlap > 0 {
				last := current[len(current)-1]
				current = []string{last}
				currentLen = len(last)
			} else {
				current = current[:0]
				currentLen = 0
			}
		}

		current = append(current, p)
		currentLen += paragraphLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}

	return chunks
}
