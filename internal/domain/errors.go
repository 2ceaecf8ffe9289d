package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceTimeout indicates that a source did not respond within
	// its per-source timeout.
	ErrSourceTimeout = errors.New("source timeout")

	// ErrSourceUnavailable indicates that a source returned an error or
	// an invalid payload.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceDisabled indicates that a source is disabled by configuration.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrAllSourcesFailed indicates that every enabled source errored or
	// timed out during one orchestration pass. This is the only fatal
	// search error; partial failure is not an error.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrCacheFetch indicates that the fetch underlying a cache fill
	// failed. The failure is propagated to all waiting callers and is
	// never cached.
	ErrCacheFetch = errors.New("cache fetch failed")

	// ErrStrategyFailed indicates that one full-text strategy failed
	// definitively. Non-fatal; the resolver moves to the next strategy.
	ErrStrategyFailed = errors.New("strategy failed")

	// ErrExhausted indicates that every full-text strategy failed for a
	// record. Terminal for that record, non-fatal for the search.
	ErrExhausted = errors.New("full-text strategies exhausted")

	// ErrInvalidTransition indicates an attempted backward full-text
	// state transition.
	ErrInvalidTransition = errors.New("invalid full-text state transition")

	// ErrRateLimited indicates that a request was rate limited.
	ErrRateLimited = errors.New("rate limited")
)

// SourceError wraps a failure from one source with enough context to
// surface it as a warning.
type SourceError struct {
	Source SourceType
	Kind   string
	Cause  error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed (%s): %v", e.Source, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Warning converts the error into a SourceWarning for the outcome.
func (e *SourceError) Warning() SourceWarning {
	return SourceWarning{
		Source: e.Source,
		Kind:   e.Kind,
		Err:    e.Cause.Error(),
	}
}

// AllSourcesFailedError is the fatal outcome of an orchestration pass
// in which no source responded. Every per-source failure is itemized so
// callers can distinguish "no matches" from "all sources unreachable".
type AllSourcesFailedError struct {
	Warnings []SourceWarning
}

// Error implements the error interface.
func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("all sources failed: %d source(s) errored or timed out", len(e.Warnings))
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AllSourcesFailedError) Unwrap() error {
	return ErrAllSourcesFailed
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}
