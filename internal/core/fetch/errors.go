package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failed catalog request.
type ErrorCode string

const (
	CodeNetwork ErrorCode = "NETWORK"
	CodeTimeout ErrorCode = "TIMEOUT"
	CodeHTTP    ErrorCode = "HTTP"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// ErrCanceled is returned when the caller's context ends a request. It is
// never wrapped in an APIError and never retried.
var ErrCanceled = errors.New("request canceled")

// errAttemptTimeout is the context cause set on per-attempt deadlines.
var errAttemptTimeout = errors.New("attempt deadline exceeded")

// APIError is the typed failure of a catalog request.
type APIError struct {
	Code   ErrorCode
	Status int
	Detail string
	URL    string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Code == CodeHTTP && e.Detail != "":
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	case e.Code == CodeHTTP:
		return fmt.Sprintf("HTTP %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	default:
		return string(e.Code)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *APIError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeNetwork, CodeTimeout:
		return true
	case CodeHTTP:
		return retryableStatus(e.Status)
	default:
		return false
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= http.StatusInternalServerError
}

// IsTransport reports whether err is a NETWORK or TIMEOUT failure, the only
// kinds that justify trying another endpoint.
func IsTransport(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNetwork || apiErr.Code == CodeTimeout
}

// IsCanceled reports whether err came from caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func canceled(cause error) error {
	if cause == nil {
		return ErrCanceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
