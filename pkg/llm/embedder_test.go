package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfqa/internal/types"
	"github.com/xhad/pdfqa/pkg/llm"
)

type fakeEmbedClient struct {
	calls  int
	texts  []string
	err    error
	short  bool
	vector func(text string) []float32
}

func (f *fakeEmbedClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, f.vector(text))
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func lengthVector(text string) []float32 {
	return []float32{float32(len(text)), 1, 0}
}

func newTestEmbedder(t *testing.T, client *fakeEmbedClient, config llm.EmbedderConfig) *llm.Embedder {
	t.Helper()
	if client.vector == nil {
		client.vector = lengthVector
	}
	config.Provider = llm.ProviderOpenAICompatible
	emb, err := llm.NewEmbedderWithClient(config, client, nil)
	require.NoError(t, err)
	return emb
}

func TestNewEmbedderWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.EmbedderConfig
		enabled bool
		wantErr bool
	}{
		{name: "disabled", config: llm.EmbedderConfig{Provider: llm.ProviderNone}},
		{name: "empty provider means disabled", config: llm.EmbedderConfig{}},
		{name: "missing api key", config: llm.EmbedderConfig{Provider: llm.ProviderOpenAICompatible}},
		{
			name:    "openai compatible",
			config:  llm.EmbedderConfig{Provider: llm.ProviderOpenAICompatible, APIKey: "sk-test", BaseURL: "http://localhost:1234/v1"},
			enabled: true,
		},
		{
			name:    "ollama",
			config:  llm.EmbedderConfig{Provider: llm.ProviderOllama, Model: "nomic-embed-text", BaseURL: "http://localhost:11434/v1"},
			enabled: true,
		},
		{name: "unknown provider", config: llm.EmbedderConfig{Provider: "cohere"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := llm.NewEmbedderWithConfig(tt.config, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, emb.Enabled())
		})
	}
}

func TestEmbed_Disabled(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: llm.ProviderNone}, nil)
	require.NoError(t, err)

	assert.Nil(t, emb.Embed(context.Background(), []string{"hello"}))
}

func TestEmbed_PreservesOrder(t *testing.T) {
	client := &fakeEmbedClient{}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})

	vectors := emb.Embed(context.Background(), []string{"a", "bbb", "cc"})

	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[1][0])
	assert.Equal(t, float32(2), vectors[2][0])
}

func TestEmbed_EmptyInput(t *testing.T) {
	client := &fakeEmbedClient{}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})

	assert.Nil(t, emb.Embed(context.Background(), nil))
	assert.Zero(t, client.calls)
}

func TestEmbed_UsesCache(t *testing.T) {
	client := &fakeEmbedClient{}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})
	ctx := context.Background()

	first := emb.Embed(ctx, []string{"alpha", "beta"})
	require.Len(t, first, 2)
	assert.Equal(t, 1, client.calls)

	second := emb.Embed(ctx, []string{"beta", "gamma"})
	require.Len(t, second, 2)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 2, client.calls)
	// only the uncached text goes to the provider
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, client.texts)

	third := emb.Embed(ctx, []string{"alpha"})
	require.Len(t, third, 1)
	assert.Equal(t, 2, client.calls)
}

func TestEmbed_ProviderFailure(t *testing.T) {
	client := &fakeEmbedClient{err: errors.New("connection refused")}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})

	assert.Nil(t, emb.Embed(context.Background(), []string{"hello"}))
}

func TestEmbed_MismatchedBatch(t *testing.T) {
	client := &fakeEmbedClient{short: true}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})

	assert.Nil(t, emb.Embed(context.Background(), []string{"one", "two"}))
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	client := &fakeEmbedClient{}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{Dimension: 1536})

	assert.Nil(t, emb.Embed(context.Background(), []string{"hello"}))
}

func TestEmbed_CancelledContext(t *testing.T) {
	client := &fakeEmbedClient{}
	emb := newTestEmbedder(t, client, llm.EmbedderConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, emb.Embed(ctx, []string{"hello"}))
	assert.Zero(t, client.calls)
}

func TestEmbedderInterfaceCompliance(t *testing.T) {
	var _ types.Embedder = (*llm.Embedder)(nil)
}
