package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector does not have the corpus
	// dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrTenantRequired is returned by stores when a call omits the tenant.
	ErrTenantRequired = errors.New("tenant id is required")
)

// EmbeddingError reports a failed embedding call: timeout, malformed
// response or quota exhaustion.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s failed: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexUnavailableError reports that the vector store could not serve a call.
type IndexUnavailableError struct {
	Op  string
	Err error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("vector index %s failed: %v", e.Op, e.Err)
}

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

// GenerationError reports a failed or malformed completion call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s failed: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CacheError reports a response cache failure. It never reaches callers of
// the orchestrator.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// IsEmbeddingError reports whether err is or wraps an EmbeddingError.
func IsEmbeddingError(err error) bool {
	var target *EmbeddingError
	return errors.As(err, &target)
}

// IsIndexUnavailable reports whether err is or wraps an IndexUnavailableError.
func IsIndexUnavailable(err error) bool {
	var target *IndexUnavailableError
	return errors.As(err, &target)
}

// IsGenerationError reports whether err is or wraps a GenerationError.
func IsGenerationError(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}
