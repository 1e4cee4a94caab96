// Package qa answers questions over the ingested documents.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/internal/types"
	"github.com/xhad/pdfqa/pkg/answer"
	"github.com/xhad/pdfqa/pkg/config"
)

const DefaultTopK = 8

var ErrEmptyQuestion = errors.New("question must not be empty")

// Retriever returns fused evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, embedding []float32, sourceIDs []int64, limit int) ([]models.EvidenceItem, error)
}

// ChatFactory builds a chat gateway for a settings snapshot.
type ChatFactory func(settings config.ChatSettings) (types.ChatCompleter, error)

type ServiceConfig struct {
	DefaultTopK        int
	CiteAllWhenUncited bool
}

type Request struct {
	Question  string  `json:"question"`
	SourceIDs []int64 `json:"source_ids,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
}

type Response struct {
	Answer    string                `json:"answer"`
	Citations []models.Citation     `json:"citations"`
	Evidence  []models.EvidenceItem `json:"evidence"`
}

// chatState pairs a settings snapshot with the synthesizer built from it. It is
// replaced whole, never modified.
type chatState struct {
	settings    config.ChatSettings
	synthesizer *answer.Synthesizer
}

type Service struct {
	config    ServiceConfig
	retriever Retriever
	embedder  types.Embedder
	newChat   ChatFactory
	logger    *zap.Logger

	state    atomic.Pointer[chatState]
	updateMu sync.Mutex
}

func NewService(config ServiceConfig, retriever Retriever, embedder types.Embedder, settings config.ChatSettings, newChat ChatFactory, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = DefaultTopK
	}

	s := &Service{
		config:    config,
		retriever: retriever,
		embedder:  embedder,
		newChat:   newChat,
		logger:    logger,
	}

	state, err := s.buildState(settings)
	if err != nil {
		return nil, err
	}
	s.state.Store(state)

	return s, nil
}

func (s *Service) buildState(settings config.ChatSettings) (*chatState, error) {
	chat, err := s.newChat(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	return &chatState{
		settings:    settings,
		synthesizer: answer.NewSynthesizer(chat, s.logger),
	}, nil
}

// ChatSettings returns the snapshot new questions are answered with.
func (s *Service) ChatSettings() config.ChatSettings {
	return s.state.Load().settings
}

// UpdateChatSettings applies the update to a copy of the current snapshot and swaps
// it in. Questions already in flight finish with the settings they started with.
func (s *Service) UpdateChatSettings(update config.ChatSettingsUpdate) (config.ChatSettings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	next, err := s.buildState(s.state.Load().settings.With(update))
	if err != nil {
		return s.ChatSettings(), err
	}
	s.state.Store(next)

	s.logger.Info("chat settings updated",
		zap.String("base_url", next.settings.BaseURL),
		zap.String("model", next.settings.Model))

	return next.settings, nil
}

func notFound() Response {
	nf := answer.NotFound()
	return Response{Answer: nf.Answer, Citations: nf.Citations, Evidence: []models.EvidenceItem{}}
}

// Ask retrieves evidence for the question and answers from it. Only storage
// failures surface as errors; model trouble degrades inside the synthesizer.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.config.DefaultTopK
	}

	var embedding []float32
	if s.embedder.Enabled() {
		if vectors := s.embedder.Embed(ctx, []string{question}); len(vectors) == 1 {
			embedding = vectors[0]
		}
	}
	if embedding == nil {
		s.logger.Debug("answering in lexical-only mode")
	}

	evidence, err := s.retriever.Retrieve(ctx, question, embedding, req.SourceIDs, topK)
	if err != nil {
		return Response{}, fmt.Errorf("failed to retrieve evidence: %w", err)
	}
	if len(evidence) == 0 {
		return notFound(), nil
	}

	synthesizer := s.state.Load().synthesizer
	result := synthesizer.Synthesize(ctx, question, evidence)
	if isNotFound(result.Answer) {
		return notFound(), nil
	}

	citations := result.Citations
	if len(citations) == 0 && s.config.CiteAllWhenUncited {
		citations = make([]models.Citation, 0, len(evidence))
		for i, e := range evidence {
			citations = append(citations, e.Cite(i+1))
		}
	}

	return Response{
		Answer:    result.Answer,
		Citations: citations,
		Evidence:  evidence,
	}, nil
}

func isNotFound(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "" || strings.TrimRight(t, ".") == answer.NotFoundAnswer
}
