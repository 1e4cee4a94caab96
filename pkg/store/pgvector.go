// Package store persists documents, pages and chunks in PostgreSQL with pgvector.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

var textSearchConfigPattern = regexp.MustCompile(`^[a-z_]+$`)

type StoreConfig struct {
	ConnString       string
	VectorDim        int
	TextSearchConfig string
}

// Store is the chunk store. Retrieval only ever reads from it.
type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewWithConfig(ctx context.Context, config StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // text-embedding-3-small
	}
	if config.TextSearchConfig == "" {
		config.TextSearchConfig = "english"
	}
	// interpolated into DDL, so it must stay a bare identifier
	if !textSearchConfigPattern.MatchString(config.TextSearchConfig) {
		return nil, fmt.Errorf("invalid text search config: %q", config.TextSearchConfig)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
		logger: logger,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"vector extension", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"documents table", `
			CREATE TABLE IF NOT EXISTS documents (
				id BIGSERIAL PRIMARY KEY,
				title TEXT NOT NULL,
				filename TEXT NOT NULL,
				file_path TEXT,
				file_data BYTEA,
				has_text_layer BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"pages table", `
			CREATE TABLE IF NOT EXISTS pages (
				id BIGSERIAL PRIMARY KEY,
				document_id BIGINT NOT NULL REFERENCES documents(id),
				page_no INTEGER NOT NULL CHECK (page_no >= 1),
				text TEXT,
				UNIQUE (document_id, page_no)
			)`},
		{"chunks table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS chunks (
				id BIGSERIAL PRIMARY KEY,
				document_id BIGINT NOT NULL REFERENCES documents(id),
				section_path TEXT,
				page_start INTEGER NOT NULL,
				page_end INTEGER NOT NULL,
				chunk_text TEXT NOT NULL,
				embedding vector(%d),
				fts tsvector GENERATED ALWAYS AS (to_tsvector('%s'::regconfig, chunk_text)) STORED,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CHECK (page_start <= page_end)
			)`, s.config.VectorDim, s.config.TextSearchConfig)},
		{"chunks document index", `CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks (document_id)`},
		{"full-text index", `CREATE INDEX IF NOT EXISTS chunks_fts_idx ON chunks USING GIN (fts)`},
		{"vector index", `
			CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks
			USING ivfflat (embedding vector_l2_ops)
			WITH (lists = 100)`},
	}

	for _, st := range statements {
		if _, err := s.pool.Exec(ctx, st.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// sanitizeUTF8 drops invalid byte sequences and NUL characters, both of which
// PostgreSQL rejects in text columns.
func sanitizeUTF8(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}

// nullIfEmpty maps "" to SQL NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
