package masto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies every failure surfaced by the client.
type ErrorKind int

const (
	// KindUnknown is anything not covered below. StatusCode and Body are preserved.
	KindUnknown ErrorKind = iota
	// KindNetwork means the transport was unreachable, reset, or the gateway failed.
	KindNetwork
	// KindTimeout means the per-request deadline elapsed.
	KindTimeout
	// KindUnauthorized means the token is missing, invalid, revoked or lacks scope.
	KindUnauthorized
	// KindRateLimited means the server answered 429.
	KindRateLimited
	// KindNotFound means the server answered 404.
	KindNotFound
	// KindValidation covers 422 responses, local version-gate failures and
	// responses whose body does not match the declared entity shape.
	KindValidation
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Sentinels matched by (*Error).Is so callers can use errors.Is.
var (
	ErrNetwork      = errors.New("network error")
	ErrTimeout      = errors.New("request timeout")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnknown      = errors.New("unknown error")
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired        = errors.New("config is required")
	ErrURLRequired           = errors.New("instance URL is required")
	ErrStreamingUnavailable  = errors.New("streaming URL is not known for this instance")
	ErrSubscriberClosed      = errors.New("stream subscriber is closed")
	ErrReconnectBudget       = errors.New("stream reconnect budget exhausted")
	ErrUnsupportedCacheType  = errors.New("unsupported cache type")
	ErrCacheDisabled         = errors.New("cache disabled")
	ErrKeyNotFound           = errors.New("key not found")
	ErrEntryExpired          = errors.New("entry expired")
	ErrKeyNotFoundInAnyCache = errors.New("key not found in any cache")
	ErrNATSConfigRequired    = errors.New("NATS configuration required for NATS cache")
	ErrInvalidParams         = errors.New("params must be a struct, a pointer to a struct or masto.Params")
)

// Error is the single error shape returned by every public operation.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Description is the server's error_description, when present.
	Description string
	// Details holds per-field validation errors from a 422 payload.
	Details map[string][]ValidationDetail
	// RetryAfter is the parsed Retry-After hint of a 429 response.
	RetryAfter time.Duration
	// RequiredVersion and ActualVersion are set by version-gate failures.
	RequiredVersion string
	ActualVersion   string
	// Op names the failed operation, e.g. "GET /api/v1/statuses/1".
	Op   string
	Body []byte
	// Cause is the underlying transport or decode error, if any.
	Cause error
}

// ValidationDetail is one entry of a Mastodon 422 "details" object.
type ValidationDetail struct {
	Error       string `json:"error"       yaml:"error"`
	Description string `json:"description" yaml:"description"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())
	b.WriteString(" error")

	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}

	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	if e.RequiredVersion != "" {
		fmt.Fprintf(&b, " (requires %s, server is %s)", e.RequiredVersion, e.ActualVersion)
	}

	if e.Cause != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is maps the error kind onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNetwork:
		return target == ErrNetwork
	case KindTimeout:
		return target == ErrTimeout
	case KindUnauthorized:
		return target == ErrUnauthorized
	case KindRateLimited:
		return target == ErrRateLimited
	case KindNotFound:
		return target == ErrNotFound
	case KindValidation:
		return target == ErrValidation
	default:
		return target == ErrUnknown
	}
}

// RetryAfterSeconds returns the Retry-After hint in whole seconds.
func (e *Error) RetryAfterSeconds() int {
	return int(e.RetryAfter / time.Second)
}

// ResponseError is the JSON error payload returned by Mastodon.
type ResponseError struct {
	Error            string                        `json:"error"`
	ErrorDescription string                        `json:"error_description,omitempty"`
	Details          map[string][]ValidationDetail `json:"details,omitempty"`
}

// ParseResponseError parses an error response from JSON.
func ParseResponseError(data []byte) (*ResponseError, error) {
	var errResp ResponseError

	err := json.Unmarshal(data, &errResp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal response error: %w", err)
	}

	return &errResp, nil
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	apiErr := &Error{}
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return KindUnknown
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited checks if the error is a rate limit error.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// NewValidationError builds a local Validation error.
func NewValidationError(op, message string, cause error) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}
