package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/pkg/pdfextract"
	"docqa/internal/rag"
	"docqa/internal/transport/http/response"
)

// RAGService is the document QA surface the handler drives.
type RAGService interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	EnqueueIngest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	Ask(ctx context.Context, input app.AskInput) (*rag.Answer, error)
	ListDocuments(ctx context.Context, tenantID string) ([]model.Document, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
	DeleteAllForTenant(ctx context.Context, tenantID string) (int64, error)
}

type RAGHandler struct {
	ragService  RAGService
	maxFileSize int64
}

type CreateDocumentRequest struct {
	Name string `json:"name" binding:"max=256"`
	Text string `json:"text" binding:"required"`
}

type AskRequest struct {
	Question     string `json:"question" binding:"required"`
	SystemPrompt string `json:"system_prompt"`
}

type documentView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
	SizeBytes  int64  `json:"size_bytes"`
	CreatedAt  string `json:"created_at"`
}

func NewRAGHandler(ragService RAGService, maxFileSize int64) *RAGHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &RAGHandler{ragService: ragService, maxFileSize: maxFileSize}
}

func (h *RAGHandler) CreateDocument(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if int64(len(req.Text)) > h.maxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, h.tooLargeMessage())
		return
	}

	result, err := h.ragService.Ingest(c.Request.Context(), app.IngestInput{
		TenantID: tenantID,
		Name:     req.Name,
		Text:     req.Text,
	})
	if err != nil {
		writeServiceError(c, err, "ingest failed")
		return
	}
	response.OK(c, result)
}

// CreateDocumentAsync queues the document and returns its id right away.
func (h *RAGHandler) CreateDocumentAsync(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if int64(len(req.Text)) > h.maxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, h.tooLargeMessage())
		return
	}

	result, err := h.ragService.EnqueueIngest(c.Request.Context(), app.IngestInput{
		TenantID: tenantID,
		Name:     req.Name,
		Text:     req.Text,
	})
	if err != nil {
		writeServiceError(c, err, "enqueue ingest failed")
		return
	}
	response.Accepted(c, result)
}

// UploadPDF accepts a multipart form with "file" (PDF) and optional "name",
// extracts its text and ingests it. The PDF itself is kept in object storage.
func (h *RAGHandler) UploadPDF(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, h.tooLargeMessage())
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, h.maxFileSize+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if int64(len(raw)) > h.maxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, h.tooLargeMessage())
		return
	}

	text, err := pdfextract.ExtractText(raw)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeEmptyDocument, "failed to extract text from PDF")
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = filepath.Base(file.Filename)
	}

	result, err := h.ragService.Ingest(c.Request.Context(), app.IngestInput{
		TenantID: tenantID,
		Name:     name,
		Text:     text,
		Raw:      raw,
	})
	if err != nil {
		writeServiceError(c, err, "ingest failed")
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) ListDocuments(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.ragService.ListDocuments(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView{
			ID:         d.ID,
			Name:       d.Name,
			ChunkCount: d.ChunkCount,
			Status:     d.Status,
			SizeBytes:  d.SizeBytes,
			CreatedAt:  d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	response.OK(c, views)
}

func (h *RAGHandler) DeleteDocument(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.ragService.DeleteDocument(c.Request.Context(), tenantID, docID); err != nil {
		writeServiceError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": docID})
}

// DeleteAllDocuments removes every document of the tenant.
func (h *RAGHandler) DeleteAllDocuments(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	deleted, err := h.ragService.DeleteAllForTenant(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err, "delete documents failed")
		return
	}
	response.OK(c, gin.H{"deleted_documents": deleted})
}

func (h *RAGHandler) Ask(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		TenantID:     tenantID,
		Question:     req.Question,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeServiceError(c, err, "ask failed")
		return
	}
	response.OK(c, answer)
}

func (h *RAGHandler) tooLargeMessage() string {
	return fmt.Sprintf("file too large (max %d MB)", h.maxFileSize>>20)
}
