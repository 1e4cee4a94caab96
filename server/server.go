// Package server exposes the question answering pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/pkg/config"
	"github.com/xhad/pdfqa/pkg/ingest"
	"github.com/xhad/pdfqa/pkg/qa"
)

const defaultMaxUploadBytes = 100 << 20

// Documents is the document side of the store.
type Documents interface {
	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, id int64) (models.Document, error)
	DeleteDocument(ctx context.Context, id int64) (models.Document, error)
}

type Asker interface {
	Ask(ctx context.Context, req qa.Request) (qa.Response, error)
	ChatSettings() config.ChatSettings
	UpdateChatSettings(update config.ChatSettingsUpdate) (config.ChatSettings, error)
}

type Uploader interface {
	Ingest(ctx context.Context, filename string, content []byte) (ingest.Result, error)
	RemoveFile(path string)
}

type Reindexer interface {
	Reindex(ctx context.Context, documentID int64, batchSize int, progress ingest.Progress) (int, error)
}

type Config struct {
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Deps are the components the handlers call into.
type Deps struct {
	Documents Documents
	QA        Asker
	Ingestor  Uploader
	Reindexer Reindexer
}

type Server struct {
	config Config
	deps   Deps
	logger *zap.Logger
}

func NewServer(config Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{config: config, deps: deps, logger: logger}
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("POST /settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /files/{id}", s.handleFile)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /reindex", s.handleReindex)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s.withRequestID(s.withCORS(mux))
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

// writeInternal logs err and answers with a generic body; transport and database
// errors never reach the client.
func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func isClientError(err error) bool {
	return errors.Is(err, ingest.ErrNotPDF) ||
		errors.Is(err, ingest.ErrEmbeddingsDisabled) ||
		errors.Is(err, qa.ErrEmptyQuestion)
}
