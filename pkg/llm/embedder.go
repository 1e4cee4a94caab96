package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ProviderNone             = "none"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderOllama           = "ollama"
)

// EmbedderConfig represents the configuration for the embedding gateway.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int // 0 skips the length check
	Timeout   time.Duration
	BatchSize int
	RateLimit float64 // provider calls per second
	CacheSize int
}

// Embedder is the embedding gateway. It never fails the caller: any provider problem
// is logged and reported as "no embeddings" (a nil result).
type Embedder struct {
	config  EmbedderConfig
	client  embeddings.Embedder
	limiter *rate.Limiter
	cache   *lru.Cache[string, []float32]
	logger  *zap.Logger
}

// NewEmbedderWithConfig builds the gateway for the configured provider. A disabled or
// unconfigured provider yields a gateway whose Embed always returns nil.
func NewEmbedderWithConfig(config EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = embedderDefaults(config)

	var client embeddings.EmbedderClient
	switch strings.ToLower(config.Provider) {
	case ProviderNone:
		return newEmbedder(config, nil, logger), nil
	case ProviderOpenAICompatible:
		if strings.TrimSpace(config.APIKey) == "" {
			logger.Warn("embedding API key not set, using full-text search only")
			return newEmbedder(config, nil, logger), nil
		}
		llm, err := openai.New(
			openai.WithToken(config.APIKey),
			openai.WithBaseURL(config.BaseURL),
			openai.WithEmbeddingModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		client = llm
	case ProviderOllama:
		llm, err := ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(ollamaServerURL(config.BaseURL)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", config.Provider)
	}

	return NewEmbedderWithClient(config, client, logger)
}

// NewEmbedderWithClient wraps any langchaingo embedding client in the gateway.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.EmbedderClient, logger *zap.Logger) (*Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = embedderDefaults(config)

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return newEmbedder(config, emb, logger), nil
}

func newEmbedder(config EmbedderConfig, client embeddings.Embedder, logger *zap.Logger) *Embedder {
	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		// only fails on a non-positive size, which embedderDefaults rules out
		panic(fmt.Sprintf("failed to create embedding cache: %v", err))
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		cache:   cache,
		logger:  logger,
	}
}

func embedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = ProviderNone
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1000
	}
	return config
}

// Enabled reports whether a provider is wired in.
func (e *Embedder) Enabled() bool {
	return e.client != nil
}

// Embed returns one vector per text, in input order, or nil when embeddings are
// unavailable for any reason.
func (e *Embedder) Embed(ctx context.Context, texts []string) [][]float32 {
	if !e.Enabled() || len(texts) == 0 {
		return nil
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := e.cache.Get(cacheKey(text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		e.logger.Warn("embedding skipped, falling back to full-text search only", zap.Error(err))
		return nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}

	vectors, err := e.client.EmbedDocuments(ctx, batch)
	if err != nil {
		e.logger.Warn("embedding error, falling back to full-text search only",
			zap.String("provider", e.config.Provider),
			zap.Int("texts", len(batch)),
			zap.Error(err))
		return nil
	}
	if len(vectors) != len(batch) {
		e.logger.Warn("embedding provider returned a mismatched batch",
			zap.Int("want", len(batch)),
			zap.Int("got", len(vectors)))
		return nil
	}

	for j, i := range missing {
		v := vectors[j]
		if e.config.Dimension > 0 && len(v) != e.config.Dimension {
			e.logger.Warn("embedding dimension mismatch",
				zap.Int("want", e.config.Dimension),
				zap.Int("got", len(v)))
			return nil
		}
		out[i] = v
		e.cache.Add(cacheKey(texts[i]), v)
	}

	return out
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ollama's native API lives at the server root, not under the OpenAI-style /v1.
func ollamaServerURL(baseURL string) string {
	return strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
}
