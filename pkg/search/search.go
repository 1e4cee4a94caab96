// Package search retrieves evidence for a question from the chunk store.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/pdfqa/internal/models"
)

const (
	MinLimit = 3
	MaxLimit = 12

	minTokenLen       = 3
	maxFallbackTokens = 8
)

// Index is the read side of the chunk store used for retrieval.
type Index interface {
	FullText(ctx context.Context, question string, sourceIDs []int64, limit int) ([]models.EvidenceItem, error)
	Substring(ctx context.Context, patterns []string, sourceIDs []int64, limit int) ([]models.EvidenceItem, error)
	Nearest(ctx context.Context, embedding []float32, sourceIDs []int64, limit int) ([]models.EvidenceItem, error)
}

type Searcher struct {
	index  Index
	logger *zap.Logger
}

func New(index Index, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{index: index, logger: logger}
}

// Lexical runs the full-text query and drops to substring matching when the index
// fails or finds nothing. Only a failing substring query is returned as an error.
func (s *Searcher) Lexical(ctx context.Context, question string, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	items, err := s.index.FullText(ctx, question, sourceIDs, limit)
	if err != nil {
		s.logger.Warn("full-text search failed, using substring fallback", zap.Error(err))
	} else if len(items) > 0 {
		return items, nil
	}

	patterns := SubstringPatterns(question)
	s.logger.Debug("substring fallback", zap.Int("patterns", len(patterns)))

	items, err = s.index.Substring(ctx, patterns, sourceIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical fallback: %w", err)
	}
	return items, nil
}

// Vector returns nothing for an absent embedding; embeddings are optional.
func (s *Searcher) Vector(ctx context.Context, embedding []float32, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	if len(embedding) == 0 {
		return []models.EvidenceItem{}, nil
	}
	items, err := s.index.Nearest(ctx, embedding, sourceIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	return items, nil
}

// Retrieve runs lexical and vector search concurrently and fuses the results,
// lexical first. limit is clamped to [MinLimit, MaxLimit]. A failing vector query
// degrades to lexical-only; a failing lexical fallback is returned.
func (s *Searcher) Retrieve(ctx context.Context, question string, embedding []float32, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	limit = ClampLimit(limit)

	var lexical, vector []models.EvidenceItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = s.Lexical(gctx, question, sourceIDs, limit)
		return err
	})
	g.Go(func() error {
		var err error
		vector, err = s.Vector(gctx, embedding, sourceIDs, limit)
		if err != nil {
			s.logger.Warn("vector search failed, continuing lexical-only", zap.Error(err))
			vector = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(lexical, vector, limit)
	s.logger.Debug("evidence retrieved",
		zap.Int("lexical", len(lexical)),
		zap.Int("vector", len(vector)),
		zap.Int("fused", len(fused)))
	return fused, nil
}

// Fuse concatenates lexical and vector results, keeps the first occurrence of each
// chunk and stops at limit. Scores are not calibrated across methods.
func Fuse(lexical, vector []models.EvidenceItem, limit int) []models.EvidenceItem {
	out := make([]models.EvidenceItem, 0, min(limit, len(lexical)+len(vector)))
	seen := make(map[int64]struct{}, limit)

	for _, list := range [][]models.EvidenceItem{lexical, vector} {
		for _, item := range list {
			if len(out) >= limit {
				return out
			}
			if _, ok := seen[item.ChunkID]; ok {
				continue
			}
			seen[item.ChunkID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// ClampLimit forces a requested result count into [MinLimit, MaxLimit].
func ClampLimit(limit int) int {
	return max(MinLimit, min(limit, MaxLimit))
}

// FallbackTokens returns the whitespace-separated words of at least three
// characters, at most eight of them.
func FallbackTokens(question string) []string {
	var tokens []string
	for _, t := range strings.Fields(question) {
		if utf8.RuneCountInString(t) < minTokenLen {
			continue
		}
		tokens = append(tokens, t)
		if len(tokens) == maxFallbackTokens {
			break
		}
	}
	return tokens
}

// SubstringPatterns builds ILIKE patterns from the fallback tokens, or from the
// whole question when no token qualifies.
func SubstringPatterns(question string) []string {
	tokens := FallbackTokens(question)
	if len(tokens) == 0 {
		if q := strings.TrimSpace(question); q != "" {
			tokens = []string{q}
		}
	}

	patterns := make([]string, 0, len(tokens))
	for _, t := range tokens {
		patterns = append(patterns, "%"+escapeLike(t)+"%")
	}
	return patterns
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
