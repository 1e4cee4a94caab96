package types

import (
	"context"
)

// Core interfaces

// Embedder turns texts into vectors. A nil result means embeddings are unavailable
// and callers continue in lexical-only mode.
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
	Enabled() bool
}

// ChatCompleter sends one system/user prompt pair to a language model.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PageText is the raw text of one physical page.
type PageText struct {
	PageNo int
	Text   string
}

// PageExtractor pulls per-page text out of a document.
type PageExtractor interface {
	ExtractPages(content []byte) ([]PageText, error)
}
