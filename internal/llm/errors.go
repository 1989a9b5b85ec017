package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrInvalidAuth      ErrorKind = "invalid_credentials"
	ErrModelUnavailable ErrorKind = "model_unavailable"
	ErrUnavailable      ErrorKind = "unavailable"
	ErrTimeout          ErrorKind = "timeout"
	ErrBadRequest       ErrorKind = "bad_request"
	ErrEmptyResponse    ErrorKind = "empty_response"
	ErrUnknown          ErrorKind = "unknown"
)

// ProviderError carries the provider context of a failed model call.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(kindText(e.Kind))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) HTTPStatusCode() int { return e.StatusCode }

func kindText(k ErrorKind) string {
	switch k {
	case ErrRateLimited:
		return "rate limit exceeded"
	case ErrInvalidAuth:
		return "invalid API credentials"
	case ErrModelUnavailable:
		return "model unavailable"
	case ErrUnavailable:
		return "service unavailable"
	case ErrTimeout:
		return "request timed out"
	case ErrBadRequest:
		return "request rejected"
	case ErrEmptyResponse:
		return "empty response"
	default:
		return "request failed"
	}
}

// Classify builds a ProviderError from an HTTP status and provider message.
func Classify(provider string, status int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kindFor(status, message, cause),
		StatusCode: status,
		Message:    truncate(strings.TrimSpace(message), 500),
		Err:        cause,
	}
}

func kindFor(status int, message string, cause error) ErrorKind {
	msg := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "quota"):
		return ErrRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		strings.Contains(msg, "api key"), strings.Contains(msg, "invalid_api_key"), strings.Contains(msg, "authentication"):
		return ErrInvalidAuth
	case status == http.StatusNotFound,
		strings.Contains(msg, "model_not_found"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "not found") && strings.Contains(msg, "model"):
		return ErrModelUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout,
		cause != nil && errors.Is(cause, context.DeadlineExceeded):
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	case status >= 400:
		return ErrBadRequest
	default:
		return ErrUnknown
	}
}

// AsProviderError extracts the ProviderError in err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe != nil {
		return pe, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
