package entity

import (
	"fmt"
	"time"
)

// ValidationError rejects malformed input before any network call is made.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation failed for %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewAddressValidationError builds the validation error for a bad wallet address.
func NewAddressValidationError(address string) *ValidationError {
	return &ValidationError{Field: "address", Value: address, Message: "expected 40 hex characters, optionally 0x-prefixed"}
}

// FetchError is a non-success response from an upstream API. It is fatal for
// balance discovery and local (logged, degraded) for enrichment.
type FetchError struct {
	Source     string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && len(e.Body) > 0:
		return fmt.Sprintf("%s request failed with status %d: %s", e.Source, e.StatusCode, string(e.Body))
	case e.StatusCode != 0:
		return fmt.Sprintf("%s request failed with status %d", e.Source, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s request failed", e.Source)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimitError is an HTTP 429 from an upstream. It triggers bounded retry
// with backoff and only surfaces once retries are exhausted.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Source)
}

// TimeoutError marks a polling session that exhausted its wall-clock budget.
// Callers treat it as a completed-but-partial result, not a failure.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its %s budget", e.Op, e.Budget)
}
