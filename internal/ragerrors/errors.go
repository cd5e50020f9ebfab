// Package ragerrors provides sentinel and custom error types for the retrieval layer.
package ragerrors

import (
	"errors"
	"io/fs"
	"strings"
)

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrEmbeddingGeneration is the sentinel for embedding provider failures.
var ErrEmbeddingGeneration = &EmbeddingGenerationError{}

// EmbeddingGenerationError reports that the embedding provider could not produce a vector.
// Message carries the provider's message.
type EmbeddingGenerationError struct {
	Message string
	Err     error
}

// NewEmbeddingGenerationError wraps a provider failure.
func NewEmbeddingGenerationError(err error) *EmbeddingGenerationError {
	e := &EmbeddingGenerationError{Err: err}
	if err != nil {
		e.Message = err.Error()
	}

	return e
}

// Error implements the error interface.
func (e *EmbeddingGenerationError) Error() string {
	if e.Message != "" {
		return "failed to generate embedding: " + e.Message
	}

	return "failed to generate embedding"
}

// Unwrap returns the provider error.
func (e *EmbeddingGenerationError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *EmbeddingGenerationError) Is(target error) bool {
	_, ok := target.(*EmbeddingGenerationError)

	return ok
}

// ErrIndexLoad is the sentinel for persisted index load failures.
var ErrIndexLoad = &IndexLoadError{}

// IndexLoadError reports that a persisted vector index is missing or unreadable.
type IndexLoadError struct {
	RoadmapID string
	Path      string
	Err       error
}

// NewIndexLoadError creates an IndexLoadError.
func NewIndexLoadError(roadmapID, path string, err error) *IndexLoadError {
	return &IndexLoadError{RoadmapID: roadmapID, Path: path, Err: err}
}

// Error implements the error interface.
func (e *IndexLoadError) Error() string {
	msg := "failed to load embedding index for roadmap " + e.RoadmapID
	if e.Path != "" {
		msg += " from " + e.Path
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *IndexLoadError) Unwrap() error { return e.Err }

// Is matches ErrIndexLoad, and ErrNotFound when the index directory does not exist.
func (e *IndexLoadError) Is(target error) bool {
	switch target.(type) {
	case *IndexLoadError:
		return true
	case *NotFoundError:
		return errors.Is(e.Err, fs.ErrNotExist)
	default:
		return false
	}
}

// ErrRetrieval is the sentinel for retrieval failures against a loaded index.
var ErrRetrieval = &RetrievalError{}

// RetrievalError reports that nearest-neighbor retrieval failed.
type RetrievalError struct {
	RoadmapID string
	Err       error
}

// NewRetrievalError creates a RetrievalError.
func NewRetrievalError(roadmapID string, err error) *RetrievalError {
	return &RetrievalError{RoadmapID: roadmapID, Err: err}
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	msg := "retrieval failed for roadmap " + e.RoadmapID
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *RetrievalError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *RetrievalError) Is(target error) bool {
	_, ok := target.(*RetrievalError)

	return ok
}

// ErrNoActiveIndex is the sentinel for a roadmap/user pair with no active index.
var ErrNoActiveIndex = &NoActiveIndexError{}

// NoActiveIndexError reports that no active embedding index exists for a roadmap (and user).
// It also matches ErrNotFound.
type NoActiveIndexError struct {
	RoadmapID string
	UserID    *string
}

// NewNoActiveIndexError creates a NoActiveIndexError.
func NewNoActiveIndexError(roadmapID string, userID *string) *NoActiveIndexError {
	return &NoActiveIndexError{RoadmapID: roadmapID, UserID: userID}
}

// Error implements the error interface.
func (e *NoActiveIndexError) Error() string {
	var b strings.Builder

	b.WriteString("no active embedding index found for roadmap: ")
	b.WriteString(e.RoadmapID)

	if e.UserID != nil {
		b.WriteString(" user: ")
		b.WriteString(*e.UserID)
	}

	return b.String()
}

// Is implements the error interface for error comparison.
func (e *NoActiveIndexError) Is(target error) bool {
	switch target.(type) {
	case *NoActiveIndexError, *NotFoundError:
		return true
	default:
		return false
	}
}

// ErrBackend is the sentinel for a failed query against a retrieval backend.
var ErrBackend = &BackendError{}

// BackendError wraps any failure of a backend query with the backend's name.
type BackendError struct {
	Backend   string
	RoadmapID string
	Err       error
}

// NewBackendError creates a BackendError.
func NewBackendError(backend, roadmapID string, err error) *BackendError {
	return &BackendError{Backend: backend, RoadmapID: roadmapID, Err: err}
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := "failed to query " + e.Backend + " embeddings"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *BackendError) Is(target error) bool {
	_, ok := target.(*BackendError)

	return ok
}
