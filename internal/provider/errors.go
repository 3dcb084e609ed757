package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure into the closed taxonomy the
// orchestrator's fallback logic dispatches on.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindUnauthorized  Kind = "unauthorized"
	KindRateLimited   Kind = "rate_limited"
	KindUnavailable   Kind = "upstream_unavailable"
	KindUpstream      Kind = "upstream_error"
	KindEmptyResponse Kind = "empty_response"
	KindNoJSON        Kind = "no_json_found"
	KindCancelled     Kind = "cancelled"
)

// Error is a classified provider failure. StatusCode is zero when the
// failure happened before or without an HTTP response.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not a provider Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
