package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/models"
	"github.com/xhad/pdfqa/pkg/config"
	"github.com/xhad/pdfqa/pkg/extract"
	"github.com/xhad/pdfqa/pkg/ingest"
	"github.com/xhad/pdfqa/pkg/qa"
	"github.com/xhad/pdfqa/pkg/store"
)

type settingsResponse struct {
	ChatBaseURL string `json:"chat_base_url"`
	ChatModel   string `json:"chat_model"`
}

type documentResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	HasTextLayer bool   `json:"has_text_layer"`
}

type uploadResponse struct {
	Document      documentResponse `json:"document"`
	IngestStarted bool             `json:"ingest_started"`
}

func toDocumentResponse(d models.Document) documentResponse {
	return documentResponse{ID: d.ID, Title: d.Title, Filename: d.Filename, HasTextLayer: d.HasTextLayer}
}

func toSettingsResponse(cs config.ChatSettings) settingsResponse {
	return settingsResponse{ChatBaseURL: cs.BaseURL, ChatModel: cs.Model}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toSettingsResponse(s.deps.QA.ChatSettings()))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update config.ChatSettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.deps.QA.UpdateChatSettings(update)
	if err != nil {
		s.logger.Warn("chat settings rejected", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, "invalid chat settings")
		return
	}
	s.writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	res, err := s.deps.Ingestor.Ingest(r.Context(), header.Filename, content)
	switch {
	case errors.Is(err, ingest.ErrNotPDF):
		s.writeError(w, http.StatusBadRequest, "Only PDF files are supported.")
		return
	case errors.Is(err, extract.ErrEmptyContent):
		s.writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	case err != nil:
		s.writeInternal(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Document:      toDocumentResponse(res.Document),
		IngestStarted: res.IngestStarted,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := s.deps.Documents.DeleteDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}

	s.deps.Ingestor.RemoveFile(doc.FilePath)
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := s.deps.Documents.GetDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))

	if len(doc.FileData) > 0 {
		w.Header().Set("Content-Length", strconv.Itoa(len(doc.FileData)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc.FileData)
		return
	}

	if doc.FilePath != "" {
		f, err := os.Open(doc.FilePath)
		if err == nil {
			defer f.Close()
			modTime := doc.CreatedAt
			if info, statErr := f.Stat(); statErr == nil {
				modTime = info.ModTime()
			}
			http.ServeContent(w, r, doc.Filename, modTime, f)
			return
		}
	}

	w.Header().Del("Content-Disposition")
	s.writeError(w, http.StatusNotFound, "PDF file not found")
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req qa.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.deps.QA.Ask(r.Context(), req)
	if isClientError(err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var documentID int64
	if v := q.Get("doc_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid doc_id")
			return
		}
		documentID = id
	}

	batchSize := ingest.DefaultBatchSize
	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid batch_size")
			return
		}
		batchSize = n
	}

	start := time.Now()
	updated, err := s.deps.Reindexer.Reindex(r.Context(), documentID, batchSize, nil)
	if errors.Is(err, ingest.ErrEmbeddingsDisabled) {
		s.writeError(w, http.StatusBadRequest, "Embeddings provider is disabled")
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}

	s.logger.Info("reindex request finished",
		zap.Int("updated", updated),
		zap.Duration("took", time.Since(start)))
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
