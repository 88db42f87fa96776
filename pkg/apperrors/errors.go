// Package apperrors defines the error taxonomy shared across the
// generation pipeline. Each stage wraps its failures in a Kind so
// callers can branch on classification without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindExtraction       Kind = "extraction"
	KindSchemaResolution Kind = "schema_resolution"
	KindPromptValidation Kind = "prompt_validation"
	KindProvider         Kind = "provider"
	KindQualityGate      Kind = "quality_gate"
	KindCache            Kind = "cache"
	KindMetadata         Kind = "metadata"
)

var (
	// ErrNoRelevantSchema means ranking produced nothing above the floor.
	// Callers may retry with relaxed thresholds.
	ErrNoRelevantSchema = errors.New("no relevant schema")
	// ErrEmbeddingUnavailable means the embedding backend is down and no
	// cached vector exists; ranking degrades to keyword-only scoring.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrMetadataUnavailable indicates a collaborator outage; never
	// retried locally.
	ErrMetadataUnavailable = errors.New("metadata repository unavailable")
	// ErrProvidersExhausted means every provider was tried and none
	// produced an accepted response.
	ErrProvidersExhausted = errors.New("all providers exhausted")
	// ErrEmptyQuery rejects blank or whitespace-only input.
	ErrEmptyQuery = errors.New("empty query")
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error, or empty when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
