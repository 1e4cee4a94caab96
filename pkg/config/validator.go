package config

import (
	"fmt"
	"net/url"
	"regexp"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// text search configs are interpolated into DDL, so only plain identifiers pass.
var textSearchConfigPattern = regexp.MustCompile(`^[a-z_]+$`)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Server config
	if c.Server.FileStorage != FileStorageDisk && c.Server.FileStorage != FileStorageDatabase {
		errors = append(errors, ValidationError{
			Field:   "server.file_storage",
			Message: fmt.Sprintf("file_storage must be %q or %q", FileStorageDisk, FileStorageDatabase),
		})
	}

	// Validate Database config
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if !textSearchConfigPattern.MatchString(c.Database.TextSearchConfig) {
		errors = append(errors, ValidationError{
			Field:   "database.text_search_config",
			Message: "text_search_config must be a lowercase identifier",
		})
	}

	// Validate Embeddings config
	switch c.Embeddings.Provider {
	case EmbeddingsNone, EmbeddingsOpenAICompatible, EmbeddingsOllama:
	default:
		errors = append(errors, ValidationError{
			Field:   "embeddings.provider",
			Message: fmt.Sprintf("unknown embeddings provider: %s", c.Embeddings.Provider),
		})
	}

	if c.Embeddings.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embeddings.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embeddings.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embeddings.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Chat config
	switch c.Chat.Provider {
	case ChatOpenAICompatible, ChatOllama:
	default:
		errors = append(errors, ValidationError{
			Field:   "chat.provider",
			Message: fmt.Sprintf("unknown chat provider: %s", c.Chat.Provider),
		})
	}

	if c.Chat.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "chat.base_url",
			Message: "chat base URL is required",
		})
	} else if _, err := url.Parse(c.Chat.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "chat.base_url",
			Message: "invalid chat base URL",
		})
	}

	if c.Chat.MaxTokens < 1 || c.Chat.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "chat.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Chunker config
	if c.Chunker.MaxChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.max_chars",
			Message: "max_chars must be positive",
		})
	}

	return errors
}
