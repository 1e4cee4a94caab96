package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
)

// CreateDocument persists a document with its pages and chunks in one transaction.
// doc.ID and doc.CreatedAt are filled in on success.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document, pages []models.Page, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO documents (title, filename, file_path, file_data, has_text_layer)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		sanitizeUTF8(doc.Title),
		sanitizeUTF8(doc.Filename),
		nullIfEmpty(doc.FilePath),
		doc.FileData,
		doc.HasTextLayer,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range pages {
		batch.Queue(`INSERT INTO pages (document_id, page_no, text) VALUES ($1, $2, $3)`,
			doc.ID, p.PageNo, nullIfEmpty(sanitizeUTF8(p.Text)))
	}
	for _, c := range chunks {
		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(`
			INSERT INTO chunks (document_id, section_path, page_start, page_end, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			doc.ID, nullIfEmpty(c.SectionPath), c.PageStart, c.PageEnd, sanitizeUTF8(c.Text), embedding)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert pages and chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("document stored",
		zap.Int64("document_id", doc.ID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))

	return nil
}

// ListDocuments returns all documents newest first, without file bytes.
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, filename, COALESCE(file_path, ''), has_text_layer, created_at
		FROM documents
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Filename, &d.FilePath, &d.HasTextLayer, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}

// GetDocument returns one document including any stored file bytes.
func (s *Store) GetDocument(ctx context.Context, id int64) (models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, filename, COALESCE(file_path, ''), file_data, has_text_layer, created_at
		FROM documents
		WHERE id = $1`, id,
	).Scan(&d.ID, &d.Title, &d.Filename, &d.FilePath, &d.FileData, &d.HasTextLayer, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// DeleteDocument removes a document and everything derived from it. The deleted row
// is returned so the caller can clean up any file on disk.
func (s *Store) DeleteDocument(ctx context.Context, id int64) (models.Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var d models.Document
	err = tx.QueryRow(ctx, `
		SELECT id, title, filename, COALESCE(file_path, '')
		FROM documents
		WHERE id = $1
		FOR UPDATE`, id,
	).Scan(&d.ID, &d.Title, &d.Filename, &d.FilePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("failed to lock document: %w", err)
	}

	// children first, the foreign keys have no ON DELETE CASCADE
	for _, stmt := range []string{
		`DELETE FROM chunks WHERE document_id = $1`,
		`DELETE FROM pages WHERE document_id = $1`,
		`DELETE FROM documents WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return d, fmt.Errorf("failed to delete document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return d, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("document deleted", zap.Int64("document_id", id))
	return d, nil
}

// Pages returns the stored pages of a document in page order.
func (s *Store) Pages(ctx context.Context, documentID int64) ([]models.Page, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, page_no, COALESCE(text, '')
		FROM pages
		WHERE document_id = $1
		ORDER BY page_no`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.DocumentID, &p.PageNo, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
