package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ChatEngine is the chat gateway: one blocking completion per call.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

var ErrEmptyResponse = errors.New("empty response from model")

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}

	var llm llms.Model
	switch strings.ToLower(config.Provider) {
	case ProviderOpenAICompatible:
		apiKey := config.APIKey
		if apiKey == "" {
			// the openai client refuses an empty token; local endpoints ignore it
			apiKey = "changeme"
		}
		llm, err = openai.New(
			openai.WithToken(apiKey),
			openai.WithBaseURL(config.BaseURL),
			openai.WithModel(config.Model),
		)
	case ProviderOllama:
		llm, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(ollamaServerURL(config.BaseURL)),
		)
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func chatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAICompatible
	}
	if config.Model == "" {
		config.Model = "gpt-oss-20b"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434/v1"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return config, nil
}

// Config returns the engine's configuration.
func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

// Complete sends the prompts and returns the raw text of the first choice.
func (ce *ChatEngine) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	return response.Choices[0].Content, nil
}
