package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/pkg/store"
)

// Integration tests need a disposable PostgreSQL with pgvector; the schema is
// created with three-dimensional vectors.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	url := os.Getenv("PDFQA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PDFQA_TEST_DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(context.Background(), store.StoreConfig{
		ConnString: url,
		VectorDim:  3,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func createTestDocument(t *testing.T, s *store.Store) models.Document {
	t.Helper()
	ctx := context.Background()

	doc := models.Document{
		Title:        "Quantum Notes",
		Filename:     "quantum.pdf",
		FileData:     []byte("%PDF-1.4 test"),
		HasTextLayer: true,
	}
	pages := []models.Page{
		{PageNo: 1, Text: "Quantum entanglement links particles."},
		{PageNo: 2, Text: ""},
		{PageNo: 3, Text: "Classical mechanics describes motion."},
	}
	chunks := []models.Chunk{
		{PageStart: 1, PageEnd: 1, Text: "Quantum entanglement links particles.", Embedding: []float32{1, 0, 0}},
		{PageStart: 3, PageEnd: 3, Text: "Classical mechanics describes motion.", Embedding: []float32{0, 1, 0}},
		{PageStart: 3, PageEnd: 3, Text: "Appendix on quantum tunnelling."},
	}

	require.NoError(t, s.CreateDocument(ctx, &doc, pages, chunks))
	require.NotZero(t, doc.ID)
	t.Cleanup(func() {
		_, _ = s.DeleteDocument(context.Background(), doc.ID)
	})
	return doc
}

func TestStore_Documents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quantum Notes", got.Title)
	assert.Equal(t, []byte("%PDF-1.4 test"), got.FileData)
	assert.True(t, got.HasTextLayer)

	pages, err := s.Pages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, 2, pages[1].PageNo)
	assert.Empty(t, pages[1].Text)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	var found bool
	for _, d := range docs {
		if d.ID == doc.ID {
			found = true
			assert.Nil(t, d.FileData)
		}
	}
	assert.True(t, found)
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)
	only := []int64{doc.ID}

	lexical, err := s.FullText(ctx, "entanglement", only, 5)
	require.NoError(t, err)
	require.NotEmpty(t, lexical)
	assert.Equal(t, "Quantum entanglement links particles.", lexical[0].Excerpt)
	assert.Equal(t, "Quantum Notes", lexical[0].DocumentTitle)

	none, err := s.FullText(ctx, "entanglement", []int64{-1}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	substring, err := s.Substring(ctx, []string{"%QUANTUM%"}, only, 5)
	require.NoError(t, err)
	require.Len(t, substring, 2)
	// newest chunk first
	assert.Greater(t, substring[0].ChunkID, substring[1].ChunkID)

	nearest, err := s.Nearest(ctx, []float32{0, 0.9, 0.1}, only, 5)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	assert.Equal(t, "Classical mechanics describes motion.", nearest[0].Excerpt)
}

func TestStore_Embeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)

	missing, err := s.CountMissingEmbeddings(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)

	chunks, err := s.ChunksMissingEmbedding(ctx, doc.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	after, err := s.ChunksMissingEmbedding(ctx, doc.ID, chunks[0].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, after)

	chunks[0].Embedding = []float32{0, 0, 1}
	updated, err := s.SetEmbeddings(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	missing, err = s.CountMissingEmbeddings(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, missing)
}

func TestStore_DeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)

	deleted, err := s.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, deleted.ID)

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.DeleteDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	left, err := s.FullText(ctx, "entanglement", []int64{doc.ID}, 5)
	require.NoError(t, err)
	assert.Empty(t, left)
}
