package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeQueryTooLong       = 40003
	CodePromptTooLong      = 40004
	CodeEmptyDocument      = 40005
	CodeFileTooLarge       = 40006
	CodeUnsupportedFile    = 40007
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeDocumentNotFound   = 40401
	CodeUserNotFound       = 40402
	CodeRateLimited        = 42900
	CodeInternalServer     = 50000
	CodeUpstreamFailed     = 50200
	CodeIndexUnavailable   = 50300
	CodeQueueUnavailable   = 50301
)

type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Accepted is OK for work that finishes in the background.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
