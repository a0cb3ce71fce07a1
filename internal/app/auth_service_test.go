package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docqa/internal/model"
	"docqa/internal/pkg/jwtutil"
	"docqa/internal/repository"
)

const testSecret = "test-secret"

func newUserRepo(t *testing.T) *repository.UserRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}))
	return repository.NewUserRepository(db)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewAuthService(newUserRepo(t), testSecret, time.Hour)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.User.ID)
	assert.Equal(t, "alice@example.com", reg.User.Email)

	claims, err := jwtutil.ParseToken(testSecret, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	login, err := svc.Login(ctx, LoginInput{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginInput{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = svc.Login(ctx, LoginInput{Username: "bob", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	user, err := svc.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	_, err = svc.GetUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRegisterRejectsDuplicatesAndWeakInput(t *testing.T) {
	svc := NewAuthService(newUserRepo(t), testSecret, time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "b@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameExists)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "A@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailExists)
	_, err = svc.Register(ctx, RegisterInput{Username: "carol", Email: "c@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTenantService(t *testing.T) {
	users := newUserRepo(t)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "a@example.com", PasswordHash: "x"}))
	svc := NewTenantService(users, "", 20)

	cfg, err := svc.GetConfig(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cfg.UsingDefault)
	assert.NotEmpty(t, cfg.SystemPrompt)

	cfg, err = svc.UpdateSystemPrompt(ctx, "u1", "  Be concise.  ")
	require.NoError(t, err)
	assert.False(t, cfg.UsingDefault)
	assert.Equal(t, "Be concise.", cfg.SystemPrompt)

	// Saving the same prompt again is not a missing user.
	_, err = svc.UpdateSystemPrompt(ctx, "u1", "Be concise.")
	require.NoError(t, err)

	prompt, err := svc.SystemPrompt(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", prompt)

	_, err = svc.UpdateSystemPrompt(ctx, "u1", strings.Repeat("x", 21))
	assert.ErrorIs(t, err, ErrSystemPromptTooLong)
	_, err = svc.UpdateSystemPrompt(ctx, "nobody", "hi")
	assert.ErrorIs(t, err, ErrUserNotFound)

	cfg, err = svc.UpdateSystemPrompt(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, cfg.UsingDefault)
}
