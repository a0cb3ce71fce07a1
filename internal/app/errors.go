package app

import (
	"errors"

	"docqa/internal/rag"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrUserNotFound      = errors.New("user not found")

	ErrDocumentNotFound    = errors.New("document not found")
	ErrEmptyDocument       = errors.New("document has no usable text")
	ErrQueryTooLong        = errors.New("question too long")
	ErrSystemPromptTooLong = rag.ErrSystemPromptTooLong
	ErrQueueUnavailable    = errors.New("ingest queue not configured")
)
