package app

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"docqa/internal/model"
	"docqa/internal/rag"
)

type TenantStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateSystemPrompt(ctx context.Context, id, prompt string) error
}

// TenantConfig is the tenant-editable part of ask behaviour.
type TenantConfig struct {
	SystemPrompt    string `json:"system_prompt"`
	UsingDefault    bool   `json:"using_default"`
	MaxPromptLength int    `json:"max_prompt_length"`
}

// TenantService manages per-tenant settings. It also serves as the
// PromptSource of RAGService.
type TenantService struct {
	users         TenantStore
	defaultPrompt string
	maxPromptLen  int
}

func NewTenantService(users TenantStore, defaultPrompt string, maxPromptLen int) *TenantService {
	if strings.TrimSpace(defaultPrompt) == "" {
		defaultPrompt = rag.DefaultSystemPrompt
	}
	return &TenantService{users: users, defaultPrompt: defaultPrompt, maxPromptLen: maxPromptLen}
}

func (s *TenantService) GetConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	prompt, err := s.SystemPrompt(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg := &TenantConfig{SystemPrompt: prompt, MaxPromptLength: s.maxPromptLen}
	if prompt == "" {
		cfg.SystemPrompt = s.defaultPrompt
		cfg.UsingDefault = true
	}
	return cfg, nil
}

// UpdateSystemPrompt stores prompt for the tenant. An empty prompt restores
// the default.
func (s *TenantService) UpdateSystemPrompt(ctx context.Context, tenantID, prompt string) (*TenantConfig, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidInput
	}
	prompt = strings.TrimSpace(prompt)
	if err := rag.ValidateSystemPrompt(prompt, s.maxPromptLen); err != nil {
		return nil, err
	}
	if err := s.users.UpdateSystemPrompt(ctx, tenantID, prompt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.GetConfig(ctx, tenantID)
}

func (s *TenantService) SystemPrompt(ctx context.Context, tenantID string) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", ErrInvalidInput
	}
	user, err := s.users.GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	return strings.TrimSpace(user.SystemPrompt), nil
}
