package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/internal/types"
)

const DefaultBatchSize = 32

var ErrEmbeddingsDisabled = errors.New("embeddings provider is disabled")

// EmbeddingBackfiller is the part of the store the reindexer writes through.
type EmbeddingBackfiller interface {
	CountMissingEmbeddings(ctx context.Context, documentID int64) (int, error)
	ChunksMissingEmbedding(ctx context.Context, documentID, afterID int64, limit int) ([]models.Chunk, error)
	SetEmbeddings(ctx context.Context, chunks []models.Chunk) (int, error)
}

// Progress is called after each committed batch.
type Progress func(updated, total int)

type Reindexer struct {
	store    EmbeddingBackfiller
	embedder types.Embedder
	logger   *zap.Logger
}

func NewReindexer(store EmbeddingBackfiller, embedder types.Embedder, logger *zap.Logger) *Reindexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reindexer{store: store, embedder: embedder, logger: logger}
}

// Reindex embeds chunks that have no embedding yet, batch by batch, committing
// each batch. documentID 0 covers every document. It stops early when the gateway
// returns nothing, so a rerun picks up where this one ended.
func (r *Reindexer) Reindex(ctx context.Context, documentID int64, batchSize int, progress Progress) (int, error) {
	if !r.embedder.Enabled() {
		return 0, ErrEmbeddingsDisabled
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := r.store.CountMissingEmbeddings(ctx, documentID)
	if err != nil {
		return 0, err
	}

	updated := 0
	var lastID int64
	for {
		batch, err := r.store.ChunksMissingEmbedding(ctx, documentID, lastID, batchSize)
		if err != nil {
			return updated, err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ID

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors := r.embedder.Embed(ctx, texts)
		if vectors == nil {
			r.logger.Warn("embedding unavailable, stopping reindex", zap.Int("updated", updated))
			break
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		n, err := r.store.SetEmbeddings(ctx, batch)
		if err != nil {
			return updated, err
		}
		updated += n

		if progress != nil {
			progress(updated, total)
		}
	}

	r.logger.Info("reindex finished",
		zap.Int64("document_id", documentID),
		zap.Int("updated", updated),
		zap.Int("total", total))

	return updated, nil
}
