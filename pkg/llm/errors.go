package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Routing errors.
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAllProvidersFailed  = errors.New("all providers failed")
)

// TransientError represents a temporary upstream failure.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent upstream failure such as bad credentials.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ClassifyHTTPError turns a non-2xx provider response into a transient or fatal error.
func ClassifyHTTPError(provider string, statusCode int, body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("%s API error (status %d): %s", provider, statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode == http.StatusRequestTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Auth, bad request and anything unexpected will not improve on repeat.
		return NewFatalError(err)
	}
}

// AttemptError records why one provider in a fallback chain failed.
type AttemptError struct {
	Provider string
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// FallbackError is returned when every provider in a chain failed. It
// matches ErrAllProvidersFailed and each per-attempt error via errors.Is.
type FallbackError struct {
	Attempts []*AttemptError
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%s: [%s]", ErrAllProvidersFailed, strings.Join(parts, "; "))
}

func (e *FallbackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllProvidersFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}
