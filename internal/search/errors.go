package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode classifies a search failure.
type ErrorCode string

const (
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeAuthFailure        ErrorCode = "provider_auth_failure"
	CodeNotFound           ErrorCode = "provider_not_found"
	CodeMalformedResponse  ErrorCode = "provider_malformed_response"
	CodeAllProvidersFailed ErrorCode = "all_providers_failed"
	CodeCancelled          ErrorCode = "cancelled"
	CodeUnexpected         ErrorCode = "unexpected"
)

// ProviderError carries the error taxonomy surfaced to callers. Status is the
// HTTP-style class reported per provider and, when every provider fails, once
// at the aggregate level.
type ProviderError struct {
	Code       ErrorCode     `json:"code"`
	Status     int           `json:"status"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (%d): %s, retry after %s", e.Code, e.Status, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// NewRateLimited reports a denied call against the shared quota.
func NewRateLimited(message string, retryAfter time.Duration) *ProviderError {
	return &ProviderError{
		Code:       CodeRateLimited,
		Status:     http.StatusTooManyRequests,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewAuthFailure reports a provider rejecting our credentials.
func NewAuthFailure(message string) *ProviderError {
	return &ProviderError{Code: CodeAuthFailure, Status: http.StatusUnauthorized, Message: message}
}

// NewNotFound reports a missing target (or an unconfigured provider).
func NewNotFound(message string) *ProviderError {
	return &ProviderError{Code: CodeNotFound, Status: http.StatusNotFound, Message: message}
}

// NewMalformedResponse reports an upstream payload we could not decode.
func NewMalformedResponse(message string) *ProviderError {
	return &ProviderError{Code: CodeMalformedResponse, Status: http.StatusInternalServerError, Message: message}
}

// NewAllProvidersFailed reports a run where no provider produced data.
func NewAllProvidersFailed(message string) *ProviderError {
	return &ProviderError{Code: CodeAllProvidersFailed, Status: http.StatusInternalServerError, Message: message}
}

// NewCancelled reports a search stopped by its owner.
func NewCancelled(message string) *ProviderError {
	return &ProviderError{Code: CodeCancelled, Status: http.StatusInternalServerError, Message: message}
}

// AsProviderError coerces err into a *ProviderError, classifying context
// cancellation explicitly and everything unknown as an unexpected 500.
func AsProviderError(err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelled(err.Error())
	}
	return &ProviderError{Code: CodeUnexpected, Status: http.StatusInternalServerError, Message: err.Error()}
}
