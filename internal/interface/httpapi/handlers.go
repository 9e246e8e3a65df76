package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
	"github.com/ai4ecpp/kb-rag/internal/core/retrieval"
)

// errorResponse はすべての失敗レスポンスの共通エンベロープ
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type questionRequest struct {
	Question string          `json:"question"`
	TopK     json.RawMessage `json:"topK"`
}

type chunkRef struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// handleCreateDocument は POST /api/rag/documents
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if s.documents == nil {
		s.writeUnavailable(w)
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	result, err := s.documents.Index(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "document indexed",
		"documentId": result.DocumentID,
		"chunks":     result.Chunks,
	})
}

// handleListDocuments は GET /api/rag/documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, userID string) {
	if s.documents == nil {
		s.writeUnavailable(w)
		return
	}

	docs, err := s.documents.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// handleGetDocument は GET /api/rag/documents/{id}
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if s.documents == nil {
		s.writeUnavailable(w)
		return
	}

	doc, err := s.documents.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument は DELETE /api/rag/documents/{id}
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if s.documents == nil {
		s.writeUnavailable(w)
		return
	}

	if err := s.documents.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "document deleted",
	})
}

// handleRetrieve は POST /api/rag/retrieve
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request, userID string) {
	if s.retrieval == nil {
		s.writeUnavailable(w)
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	topK := parseTopK(req.TopK, s.retrieval.DefaultTopK(), s.retrieval.MaxTopK())

	result, err := s.retrieval.Retrieve(r.Context(), userID, req.Question, topK)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	chunks := make([]chunkRef, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunks = append(chunks, chunkRef{
			Title:   chunk.DocumentTitle,
			Excerpt: chunk.Content,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"context": result.Context,
		"chunks":  chunks,
	})
}

// handleQuery は POST /api/rag/query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, userID string) {
	if s.retrieval == nil {
		s.writeUnavailable(w)
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	topK := parseTopK(req.TopK, s.retrieval.DefaultTopK(), s.retrieval.MaxTopK())

	result, err := s.retrieval.Answer(r.Context(), userID, req.Question, topK)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	chunksUsed := make([]chunkRef, 0, len(result.ChunksUsed))
	for _, chunk := range result.ChunksUsed {
		chunksUsed = append(chunksUsed, chunkRef{
			Title:   chunk.Title,
			Excerpt: chunk.Excerpt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":     result.Answer,
		"sources":    result.Sources,
		"chunksUsed": chunksUsed,
	})
}

// handleHealth は GET /api/rag/health（認証不要）
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  "unavailable",
			"message": "persistence is not configured",
		})
		return
	}

	if err := s.health(r.Context()); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "knowledge base is ready",
	})
}

// writeServiceError はコアサービスのエラーをHTTPステータスに対応づける
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrDocumentNotFound):
		// 存在しない場合と他ユーザー所有の場合を区別しない
		s.writeError(w, http.StatusNotFound, "not_found", "document not found")
	case errors.Is(err, document.ErrQuotaExceeded):
		s.writeError(w, http.StatusBadRequest, "quota_exceeded", err.Error())
	case errors.Is(err, document.ErrTitleRequired),
		errors.Is(err, document.ErrContentRequired),
		errors.Is(err, document.ErrContentTooLarge),
		errors.Is(err, document.ErrEmptyContent),
		errors.Is(err, retrieval.ErrQuestionRequired),
		errors.Is(err, retrieval.ErrQuestionTooLong):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		// Embedding・LLM・永続化の失敗は上流のメッセージをそのまま500で返す
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) writeUnavailable(w http.ResponseWriter) {
	s.writeError(w, http.StatusServiceUnavailable, "unavailable", "knowledge base persistence is not configured")
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// HealthChecker は永続化層の疎通確認関数
type HealthChecker func(ctx context.Context) error
