package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

type ConfigHandler struct {
	tenantService *app.TenantService
}

type UpdateConfigRequest struct {
	SystemPrompt *string `json:"system_prompt" binding:"required"`
}

func NewConfigHandler(tenantService *app.TenantService) *ConfigHandler {
	return &ConfigHandler{tenantService: tenantService}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	cfg, err := h.tenantService.GetConfig(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err, "load config failed")
		return
	}
	response.OK(c, cfg)
}

// Update replaces the tenant's system prompt. An empty prompt restores the
// default.
func (h *ConfigHandler) Update(c *gin.Context) {
	tenantID, ok := getTenantID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	cfg, err := h.tenantService.UpdateSystemPrompt(c.Request.Context(), tenantID, *req.SystemPrompt)
	if err != nil {
		writeServiceError(c, err, "update config failed")
		return
	}
	response.OK(c, cfg)
}
