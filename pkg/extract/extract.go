// Package extract pulls per-page plain text out of PDF files.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xhad/pdfqa/internal/types"
)

var ErrEmptyContent = errors.New("empty PDF content")

// PDFExtractor reads the text layer of a PDF page by page. Pages without a text
// layer come back with empty text; nothing here does OCR.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractPages returns one entry per physical page, numbered from 1.
func (e *PDFExtractor) ExtractPages(content []byte) (pages []types.PageText, err error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := r.NumPage()
	pages = make([]types.PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		pages = append(pages, types.PageText{PageNo: i, Text: pageText(r.Page(i))})
	}

	return pages, nil
}

func pageText(page pdf.Page) string {
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		// unreadable pages count as having no text layer
		return ""
	}
	return strings.TrimSpace(text)
}

// HasTextLayer reports whether any page carries text.
func HasTextLayer(pages []types.PageText) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
