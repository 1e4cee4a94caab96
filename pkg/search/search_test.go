package search_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/pkg/search"
)

type fakeIndex struct {
	mu sync.Mutex

	fullText    []models.EvidenceItem
	fullTextErr error
	substring   []models.EvidenceItem
	subErr      error
	nearest     []models.EvidenceItem
	nearestErr  error
	lexicalWait time.Duration

	patterns       []string
	substringCalls int
	nearestCalls   int
	limits         []int
	sourceIDs      [][]int64
}

func (f *fakeIndex) record(limit int, ids []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	f.sourceIDs = append(f.sourceIDs, ids)
}

func (f *fakeIndex) FullText(_ context.Context, _ string, ids []int64, limit int) ([]models.EvidenceItem, error) {
	f.record(limit, ids)
	time.Sleep(f.lexicalWait)
	return f.fullText, f.fullTextErr
}

func (f *fakeIndex) Substring(_ context.Context, patterns []string, ids []int64, limit int) ([]models.EvidenceItem, error) {
	f.record(limit, ids)
	f.mu.Lock()
	f.patterns = patterns
	f.substringCalls++
	f.mu.Unlock()
	return f.substring, f.subErr
}

func (f *fakeIndex) Nearest(_ context.Context, _ []float32, ids []int64, limit int) ([]models.EvidenceItem, error) {
	f.record(limit, ids)
	f.mu.Lock()
	f.nearestCalls++
	f.mu.Unlock()
	return f.nearest, f.nearestErr
}

func ev(id int64, excerpt string) models.EvidenceItem {
	return models.EvidenceItem{ChunkID: id, DocumentID: 1, DocumentTitle: "Doc", PageStart: 1, PageEnd: 1, Excerpt: excerpt}
}

func ids(items []models.EvidenceItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ChunkID)
	}
	return out
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name    string
		lexical []models.EvidenceItem
		vector  []models.EvidenceItem
		limit   int
		want    []int64
	}{
		{
			name:    "lexical first then vector without duplicates",
			lexical: []models.EvidenceItem{ev(5, ""), ev(2, "")},
			vector:  []models.EvidenceItem{ev(2, ""), ev(9, "")},
			limit:   3,
			want:    []int64{5, 2, 9},
		},
		{
			name:    "stops at limit",
			lexical: []models.EvidenceItem{ev(1, ""), ev(2, ""), ev(3, "")},
			vector:  []models.EvidenceItem{ev(4, "")},
			limit:   2,
			want:    []int64{1, 2},
		},
		{
			name:    "duplicates inside one list",
			lexical: []models.EvidenceItem{ev(1, ""), ev(1, "")},
			vector:  []models.EvidenceItem{ev(1, ""), ev(3, "")},
			limit:   5,
			want:    []int64{1, 3},
		},
		{name: "both empty", limit: 3, want: []int64{}},
		{name: "vector only", vector: []models.EvidenceItem{ev(7, "")}, limit: 3, want: []int64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(search.Fuse(tt.lexical, tt.vector, tt.limit)))
		})
	}
}

func TestFuse_LexicalWinsOnDuplicate(t *testing.T) {
	fused := search.Fuse(
		[]models.EvidenceItem{ev(2, "from lexical")},
		[]models.EvidenceItem{ev(2, "from vector")},
		3,
	)
	require.Len(t, fused, 1)
	assert.Equal(t, "from lexical", fused[0].Excerpt)
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-5: 3, 0: 3, 3: 3, 8: 8, 12: 12, 50: 12} {
		assert.Equal(t, want, search.ClampLimit(in), "limit %d", in)
	}
}

func TestSubstringPatterns(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{name: "short tokens dropped", question: "is it the RAG model", want: []string{"%the%", "%RAG%", "%model%"}},
		{name: "no qualifying token", question: "a b", want: []string{"%a b%"}},
		{name: "empty question", question: "   ", want: []string{}},
		{
			name:     "capped at eight",
			question: "one two three four five six seven eight nine ten",
			want:     []string{"%one%", "%two%", "%three%", "%four%", "%five%", "%six%", "%seven%", "%eight%"},
		},
		{name: "wildcards escaped", question: "100% rate_limit", want: []string{`%100\%%`, `%rate\_limit%`}},
		{name: "counts characters not bytes", question: "çığ ab", want: []string{"%çığ%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, search.SubstringPatterns(tt.question))
		})
	}
}

func TestLexical_PrimaryHit(t *testing.T) {
	idx := &fakeIndex{fullText: []models.EvidenceItem{ev(1, "a")}}
	s := search.New(idx, nil)

	items, err := s.Lexical(context.Background(), "question", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(items))
	assert.Zero(t, idx.substringCalls)
}

func TestLexical_FallbackOnEmpty(t *testing.T) {
	idx := &fakeIndex{fullText: []models.EvidenceItem{}, substring: []models.EvidenceItem{ev(9, "b"), ev(4, "c")}}
	s := search.New(idx, nil)

	items, err := s.Lexical(context.Background(), "what is entropy", []int64{3}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 4}, ids(items))
	assert.Equal(t, []string{"%what%", "%entropy%"}, idx.patterns)
	assert.Equal(t, []int64{3}, idx.sourceIDs[1])
}

func TestLexical_FallbackOnIndexError(t *testing.T) {
	idx := &fakeIndex{fullTextErr: errors.New("text search configuration does not exist"), substring: []models.EvidenceItem{ev(2, "x")}}
	s := search.New(idx, nil)

	items, err := s.Lexical(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(items))
	assert.Equal(t, 1, idx.substringCalls)
}

func TestLexical_FallbackErrorPropagates(t *testing.T) {
	idx := &fakeIndex{fullTextErr: errors.New("down"), subErr: errors.New("still down")}
	s := search.New(idx, nil)

	_, err := s.Lexical(context.Background(), "anything", nil, 5)
	assert.Error(t, err)
}

func TestVector_AbsentEmbedding(t *testing.T) {
	idx := &fakeIndex{nearest: []models.EvidenceItem{ev(1, "")}}
	s := search.New(idx, nil)

	items, err := s.Vector(context.Background(), nil, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, idx.nearestCalls)
}

func TestRetrieve_LexicalPriorityRegardlessOfTiming(t *testing.T) {
	// lexical finishes last but still leads the fused list
	idx := &fakeIndex{
		lexicalWait: 20 * time.Millisecond,
		fullText:    []models.EvidenceItem{ev(5, "lex"), ev(2, "lex")},
		nearest:     []models.EvidenceItem{ev(2, "vec"), ev(9, "vec")},
	}
	s := search.New(idx, nil)

	items, err := s.Retrieve(context.Background(), "question", []float32{0.1, 0.2}, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 2, 9}, ids(items))
	assert.Equal(t, "lex", items[1].Excerpt)
}

func TestRetrieve_ClampsLimit(t *testing.T) {
	idx := &fakeIndex{fullText: []models.EvidenceItem{ev(1, "")}}
	s := search.New(idx, nil)

	_, err := s.Retrieve(context.Background(), "q", nil, nil, 100)
	require.NoError(t, err)
	for _, limit := range idx.limits {
		assert.Equal(t, search.MaxLimit, limit)
	}

	idx.limits = nil
	_, err = s.Retrieve(context.Background(), "q", nil, nil, 1)
	require.NoError(t, err)
	for _, limit := range idx.limits {
		assert.Equal(t, search.MinLimit, limit)
	}
}

func TestRetrieve_NothingFound(t *testing.T) {
	s := search.New(&fakeIndex{}, nil)

	items, err := s.Retrieve(context.Background(), "unknown", nil, nil, 8)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRetrieve_VectorErrorDegrades(t *testing.T) {
	idx := &fakeIndex{fullText: []models.EvidenceItem{ev(1, "")}, nearestErr: errors.New("dimension mismatch")}
	s := search.New(idx, nil)

	items, err := s.Retrieve(context.Background(), "q", []float32{1}, nil, 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(items))
}

func TestRetrieve_LexicalErrorFails(t *testing.T) {
	idx := &fakeIndex{fullTextErr: errors.New("down"), subErr: errors.New("still down")}
	s := search.New(idx, nil)

	_, err := s.Retrieve(context.Background(), "q", nil, nil, 8)
	assert.Error(t, err)
}
