// Package answer turns retrieved evidence into a citation-grounded answer.
package answer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/internal/types"
)

const (
	NotFoundAnswer = "not found in these sources"
	DegradedAnswer = "could not reach the model; evidence listed below"
)

// Synthesizer asks the chat model for an answer and never fails: every path ends
// in a well-formed result.
type Synthesizer struct {
	chat   types.ChatCompleter
	logger *zap.Logger
}

func NewSynthesizer(chat types.ChatCompleter, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{chat: chat, logger: logger}
}

// NotFound is the result for questions the evidence cannot answer.
func NotFound() models.AnswerResult {
	return models.AnswerResult{Answer: NotFoundAnswer, Citations: []models.Citation{}}
}

// Degraded lists every evidence item when the model cannot be reached.
func Degraded(evidence []models.EvidenceItem) models.AnswerResult {
	citations := make([]models.Citation, 0, len(evidence))
	for i, e := range evidence {
		citations = append(citations, e.Cite(i+1))
	}
	return models.AnswerResult{Answer: DegradedAnswer, Citations: citations}
}

// Synthesize answers the question strictly from evidence.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, evidence []models.EvidenceItem) models.AnswerResult {
	if len(evidence) == 0 {
		return NotFound()
	}

	system, user := BuildPrompts(question, evidence)
	raw, err := s.chat.Complete(ctx, system, user)
	if err != nil {
		s.logger.Warn("model unreachable, returning evidence only",
			zap.Int("evidence", len(evidence)),
			zap.Error(err))
		return Degraded(evidence)
	}

	parsed := Parse(raw)
	if parsed.Stage != StageJSON {
		s.logger.Info("recovered malformed model output", zap.String("stage", parsed.Stage))
	}

	citations := Reground(parsed.Citations, evidence)
	if dropped := len(parsed.Citations) - len(citations); dropped > 0 {
		s.logger.Debug("dropped ungrounded citations", zap.Int("dropped", dropped))
	}

	if strings.TrimSpace(parsed.Answer) == "" {
		return NotFound()
	}

	return models.AnswerResult{Answer: parsed.Answer, Citations: citations}
}
