package models

import (
	"fmt"
	"strings"
	"time"
)

// ExcerptLimit is the maximum number of characters kept from a chunk when it is surfaced as evidence.
const ExcerptLimit = 1200

type Document struct {
	ID           int64
	Title        string
	Filename     string
	FilePath     string
	FileData     []byte
	HasTextLayer bool
	CreatedAt    time.Time
}

type Page struct {
	DocumentID int64
	PageNo     int
	Text       string
}

type Chunk struct {
	ID          int64
	DocumentID  int64
	SectionPath string
	PageStart   int
	PageEnd     int
	Text        string
	Embedding   []float32
}

// EvidenceItem is a chunk surfaced for one question. It is never mutated after creation.
type EvidenceItem struct {
	ChunkID       int64  `json:"chunk_id"`
	DocumentID    int64  `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	SectionPath   string `json:"section_path,omitempty"`
	PageStart     int    `json:"page_start"`
	PageEnd       int    `json:"page_end"`
	Excerpt       string `json:"excerpt"`
}

type Citation struct {
	Ref        *int   `json:"ref,omitempty"`
	DocumentID int64  `json:"document_id"`
	Document   string `json:"document"`
	Section    string `json:"section,omitempty"`
	Pages      string `json:"pages"`
	Excerpt    string `json:"excerpt"`
}

type AnswerResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Excerpt returns the first ExcerptLimit characters of text, trimmed.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) > ExcerptLimit {
		runes = runes[:ExcerptLimit]
	}
	return strings.TrimSpace(string(runes))
}

// PageLabel renders a page range as "p.3" or "p.3-5".
func PageLabel(start, end int) string {
	if start == end {
		return fmt.Sprintf("p.%d", start)
	}
	return fmt.Sprintf("p.%d-%d", start, end)
}

// Pages is the label of the evidence's page range.
func (e EvidenceItem) Pages() string {
	return PageLabel(e.PageStart, e.PageEnd)
}

// Cite builds the citation for this evidence item. ref is 1-based; zero leaves it unset.
func (e EvidenceItem) Cite(ref int) Citation {
	c := Citation{
		DocumentID: e.DocumentID,
		Document:   e.DocumentTitle,
		Section:    e.SectionPath,
		Pages:      e.Pages(),
		Excerpt:    e.Excerpt,
	}
	if ref > 0 {
		r := ref
		c.Ref = &r
	}
	return c
}
