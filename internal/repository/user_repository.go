package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "query user by username", "username = ?", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "query user by email", "email = ?", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.first(ctx, "query user by id", "id = ?", id)
}

// UpdateSystemPrompt stores the tenant's system prompt; an empty prompt
// restores the default.
func (r *UserRepository) UpdateSystemPrompt(ctx context.Context, id, prompt string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("system_prompt", prompt)
	if res.Error != nil {
		return fmt.Errorf("update system prompt failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value is unchanged.
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("count user failed: %w", err)
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) first(ctx context.Context, what, query string, arg any) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s failed: %w", what, err)
	}
	return &user, nil
}
