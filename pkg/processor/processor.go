package processor

import (
	"regexp"
	"strings"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/internal/types"
)

// DefaultMaxChars is the buffer size a chunk is flushed at.
const DefaultMaxChars = 1800

const separator = "\n\n"

type ProcessorConfig struct {
	MaxChars int
}

// Processor splits page text into page-tracked chunks along paragraph boundaries.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultMaxChars
	}

	return Processor{
		config: config,
	}
}

// blank lines, tolerating trailing spaces and \r\n from extractors
var paragraphBreak = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// Process chunks the pages of a single document. DocumentID and SectionPath are left
// for the caller; the returned chunks only carry page ranges and text.
func (p *Processor) Process(pages []types.PageText) []models.Chunk {
	var (
		chunks    []models.Chunk
		buf       []string
		bufLen    int
		pageStart int
		pageEnd   int
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, separator))
		if text != "" {
			chunks = append(chunks, models.Chunk{
				PageStart: pageStart,
				PageEnd:   pageEnd,
				Text:      text,
			})
		}
		buf = nil
		bufLen = 0
	}

	for _, page := range pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}

		for _, para := range splitParagraphs(text) {
			size := len([]rune(para))

			// bufLen is the length of the joined buffer, separators included, so a
			// flushed chunk never exceeds MaxChars unless it is one oversized paragraph.
			if len(buf) > 0 && bufLen+len(separator)+size > p.config.MaxChars {
				flush()
			}
			if len(buf) == 0 {
				pageStart = page.PageNo
			} else {
				bufLen += len(separator)
			}

			buf = append(buf, para)
			bufLen += size
			pageEnd = page.PageNo
		}
	}

	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para != "" {
			paras = append(paras, para)
		}
	}
	return paras
}
