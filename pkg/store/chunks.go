package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/pdfqa/internal/models"
)

const evidenceColumns = `
	c.id, c.document_id, d.title, COALESCE(c.section_path, ''), c.page_start, c.page_end,
	left(c.chunk_text, 1200)`

// sourceFilter appends a document id restriction when ids are given.
func sourceFilter(args []any, sourceIDs []int64) (string, []any) {
	if len(sourceIDs) == 0 {
		return "", args
	}
	args = append(args, sourceIDs)
	return fmt.Sprintf(" AND c.document_id = ANY($%d)", len(args)), args
}

func scanEvidence(rows pgx.Rows) ([]models.EvidenceItem, error) {
	defer rows.Close()

	items := []models.EvidenceItem{}
	for rows.Next() {
		var (
			item models.EvidenceItem
			text string
		)
		if err := rows.Scan(&item.ChunkID, &item.DocumentID, &item.DocumentTitle, &item.SectionPath,
			&item.PageStart, &item.PageEnd, &text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		item.Excerpt = models.Excerpt(text)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return items, nil
}

// FullText ranks chunks against the question with the configured text search
// configuration. It runs in a read-only transaction that is always rolled back.
func (s *Store) FullText(ctx context.Context, question string, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	args := []any{question, s.config.TextSearchConfig}
	filter, args := sourceFilter(args, sourceIDs)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.fts @@ plainto_tsquery($2::regconfig, $1)%s
		ORDER BY ts_rank(c.fts, plainto_tsquery($2::regconfig, $1)) DESC, c.id
		LIMIT $%d`, evidenceColumns, filter, len(args))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run full-text search: %w", err)
	}
	return scanEvidence(rows)
}

// Substring matches chunks whose text contains any of the ILIKE patterns, newest
// chunk first.
func (s *Store) Substring(ctx context.Context, patterns []string, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	if len(patterns) == 0 {
		return []models.EvidenceItem{}, nil
	}

	args := []any{patterns}
	filter, args := sourceFilter(args, sourceIDs)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.chunk_text ILIKE ANY($1)%s
		ORDER BY c.id DESC
		LIMIT $%d`, evidenceColumns, filter, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run substring search: %w", err)
	}
	return scanEvidence(rows)
}

// Nearest orders embedded chunks by ascending L2 distance to the query vector.
func (s *Store) Nearest(ctx context.Context, embedding []float32, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	args := []any{pgvector.NewVector(embedding)}
	filter, args := sourceFilter(args, sourceIDs)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL%s
		ORDER BY c.embedding <-> $1
		LIMIT $%d`, evidenceColumns, filter, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	return scanEvidence(rows)
}

// ChunksMissingEmbedding returns up to limit chunks without an embedding whose id is
// greater than afterID, in id order. documentID 0 means every document.
func (s *Store) ChunksMissingEmbedding(ctx context.Context, documentID, afterID int64, limit int) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, COALESCE(section_path, ''), page_start, page_end, chunk_text
		FROM chunks
		WHERE embedding IS NULL
		  AND id > $1
		  AND ($2::bigint = 0 OR document_id = $2)
		ORDER BY id
		LIMIT $3`, afterID, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SectionPath, &c.PageStart, &c.PageEnd, &c.Text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

// CountMissingEmbeddings counts chunks still waiting for an embedding.
func (s *Store) CountMissingEmbeddings(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM chunks
		WHERE embedding IS NULL
		  AND ($1::bigint = 0 OR document_id = $1)`, documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// SetEmbeddings stores the embedding of each chunk in one transaction. Chunks
// without an embedding are skipped.
func (s *Store) SetEmbeddings(ctx context.Context, chunks []models.Chunk) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		batch.Queue(`UPDATE chunks SET embedding = $1 WHERE id = $2`, pgvector.NewVector(c.Embedding), c.ID)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to update embeddings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return batch.Len(), nil
}
