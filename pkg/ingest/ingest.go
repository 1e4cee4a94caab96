// Package ingest turns uploaded PDFs into stored documents, pages and chunks, and
// backfills missing chunk embeddings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/internal/types"
	"github.com/xhad/pdfqa/pkg/extract"
	"github.com/xhad/pdfqa/pkg/processor"
)

const (
	StorageDisk     = "disk"
	StorageDatabase = "database"
)

var ErrNotPDF = errors.New("only PDF files are supported")

// DocumentWriter persists a document with everything derived from it.
type DocumentWriter interface {
	CreateDocument(ctx context.Context, doc *models.Document, pages []models.Page, chunks []models.Chunk) error
}

type IngestorConfig struct {
	FilesDir    string
	FileStorage string
	MaxChars    int
}

type Ingestor struct {
	config    IngestorConfig
	store     DocumentWriter
	extractor types.PageExtractor
	chunker   processor.Processor
	embedder  types.Embedder
	logger    *zap.Logger
}

// Result describes one ingested upload.
type Result struct {
	Document      models.Document
	Pages         int
	Chunks        int
	Embedded      bool
	IngestStarted bool
}

func NewIngestor(config IngestorConfig, store DocumentWriter, extractor types.PageExtractor, embedder types.Embedder, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FilesDir == "" {
		config.FilesDir = "../storage"
	}
	if config.FileStorage == "" {
		config.FileStorage = StorageDisk
	}

	return &Ingestor{
		config:    config,
		store:     store,
		extractor: extractor,
		chunker:   processor.NewWithConfig(processor.ProcessorConfig{MaxChars: config.MaxChars}),
		embedder:  embedder,
		logger:    logger,
	}
}

// SafeName replaces path separators so an upload name cannot escape the files dir.
func SafeName(filename string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(filename)
}

// Ingest stores the PDF and, when it has a text layer, its chunks. Chunks are
// stored without embeddings when the embedding gateway has none to give.
func (in *Ingestor) Ingest(ctx context.Context, filename string, content []byte) (Result, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return Result{}, ErrNotPDF
	}

	safeName := SafeName(filename)
	doc := models.Document{
		Title:    strings.TrimSuffix(safeName, filepath.Ext(safeName)),
		Filename: safeName,
	}

	extracted, err := in.extractor.ExtractPages(content)
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract pages: %w", err)
	}
	doc.HasTextLayer = extract.HasTextLayer(extracted)

	pages := make([]models.Page, 0, len(extracted))
	for _, p := range extracted {
		pages = append(pages, models.Page{PageNo: p.PageNo, Text: p.Text})
	}

	var chunks []models.Chunk
	embedded := false
	if doc.HasTextLayer {
		chunks = in.chunker.Process(extracted)
		if len(chunks) > 0 {
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
			}
			if vectors := in.embedder.Embed(ctx, texts); vectors != nil {
				for i := range chunks {
					chunks[i].Embedding = vectors[i]
				}
				embedded = true
			}
		}
	}

	if err := in.storeFile(&doc, content); err != nil {
		return Result{}, err
	}

	if err := in.store.CreateDocument(ctx, &doc, pages, chunks); err != nil {
		in.removeFile(doc.FilePath)
		return Result{}, err
	}

	in.logger.Info("document ingested",
		zap.Int64("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Bool("has_text_layer", doc.HasTextLayer),
		zap.Int("chunks", len(chunks)),
		zap.Bool("embedded", embedded))

	return Result{
		Document:      doc,
		Pages:         len(pages),
		Chunks:        len(chunks),
		Embedded:      embedded,
		IngestStarted: doc.HasTextLayer,
	}, nil
}

func (in *Ingestor) storeFile(doc *models.Document, content []byte) error {
	if in.config.FileStorage == StorageDatabase {
		doc.FileData = content
		return nil
	}

	dir := filepath.Join(in.config.FilesDir, "pdfs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create files dir: %w", err)
	}

	path, err := filepath.Abs(filepath.Join(dir, uuid.NewString()+"_"+doc.Filename))
	if err != nil {
		return fmt.Errorf("failed to resolve file path: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	doc.FilePath = path
	return nil
}

func (in *Ingestor) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		in.logger.Warn("failed to remove file", zap.String("path", path), zap.Error(err))
	}
}

// RemoveFile deletes a stored upload, best-effort.
func (in *Ingestor) RemoveFile(path string) {
	in.removeFile(path)
}
