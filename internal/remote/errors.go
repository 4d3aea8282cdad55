package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusError is a non-2xx reply from the generation service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote call failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable is true for rate limiting (429) and server errors (5xx).
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TransientError marks a failure as retryable regardless of its cause.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is the terminal failure of a retried call: either the last
// attempt failed non-transiently or the retry budget ran out.
type PermanentError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ParseError is a well-formed reply whose structured content is missing or
// unparsable. It is never retried.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse " + e.What + ": no content"
	}
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransient classifies err as a rate-limit or server-side failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.IsRetryable()
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.Internal:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")
}
