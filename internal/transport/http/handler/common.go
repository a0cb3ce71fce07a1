package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/rag"
	"docqa/internal/transport/http/middleware"
	"docqa/internal/transport/http/response"
)

func getTenantID(c *gin.Context) (string, bool) {
	tenantID := middleware.TenantID(c)
	return tenantID, tenantID != ""
}

// writeServiceError maps service and pipeline errors onto the response
// envelope. fallback is the message for unclassified failures.
func writeServiceError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrQueryTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeQueryTooLong, err.Error())
	case errors.Is(err, app.ErrSystemPromptTooLong):
		response.Error(c, http.StatusBadRequest, response.CodePromptTooLong, err.Error())
	case errors.Is(err, app.ErrEmptyDocument):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyDocument, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	case errors.Is(err, app.ErrQueueUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeQueueUnavailable, err.Error())
	case rag.IsEmbeddingError(err):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "embedding service unavailable")
	case rag.IsGenerationError(err):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "answer generation failed")
	case rag.IsIndexUnavailable(err):
		response.Error(c, http.StatusServiceUnavailable, response.CodeIndexUnavailable, "vector index unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
