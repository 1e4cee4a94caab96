package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/pdfqa/internal/types"
)

func TestExtractPages_Empty(t *testing.T) {
	pages, err := NewPDFExtractor().ExtractPages(nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Nil(t, pages)
}

func TestExtractPages_NotAPDF(t *testing.T) {
	pages, err := NewPDFExtractor().ExtractPages([]byte("this is plainly not a pdf file"))
	require.Error(t, err)
	assert.Nil(t, pages)
}

func TestExtractPages_ThreePages(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("testdata", "three_pages.pdf"))
	require.NoError(t, err)

	pages, err := NewPDFExtractor().ExtractPages(content)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNo)
	}
	assert.Contains(t, pages[0].Text, "Entropy never decreases")
	assert.Empty(t, pages[1].Text)
	assert.Contains(t, pages[2].Text, "Light bends in glass")
	assert.True(t, HasTextLayer(pages))
}

func TestHasTextLayer(t *testing.T) {
	tests := []struct {
		name  string
		pages []types.PageText
		want  bool
	}{
		{name: "no pages", pages: nil, want: false},
		{name: "blank pages", pages: []types.PageText{{PageNo: 1, Text: " \n"}, {PageNo: 2}}, want: false},
		{name: "one page with text", pages: []types.PageText{{PageNo: 1}, {PageNo: 2, Text: "hello"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasTextLayer(tt.pages))
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ types.PageExtractor = (*PDFExtractor)(nil)
}
