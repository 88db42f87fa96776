package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a provider failure.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeMalformed ErrorType = "malformed"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a structured provider error with a retryability flag.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable implements retry.RetryableError so the retry package can
// check retryability without importing this one.
func (e *Error) IsRetryable() bool { return e.Retryable }

// ClassifyError maps a raw provider error to a structured Error.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var known *Error
	if errors.As(err, &known) {
		return known
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(msg, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	build := func(t ErrorType, message string, retryable bool) *Error {
		return &Error{Type: t, Message: message, Retryable: retryable, Cause: err, StatusCode: statusCode, Provider: provider}
	}

	switch {
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return build(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return build(ErrorTypeModel, "model not found", false)
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return build(ErrorTypeRateLimit, "rate limited", true)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return build(ErrorTypeTimeout, "request timeout", true)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return build(ErrorTypeEndpoint, "connection failed", true)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return build(ErrorTypeEndpoint, "server error", true)
	case strings.Contains(msg, "404"):
		return build(ErrorTypeEndpoint, "endpoint not found", false)
	default:
		return build(ErrorTypeUnknown, "provider error", false)
	}
}

// TypeOf extracts the ErrorType from an error chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}
