package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

// statusError maps an HTTP error status to a *masto.Error.
func statusError(op string, status int, header http.Header, body []byte) *masto.Error {
	apiErr := &masto.Error{
		Kind:       kindForStatus(status),
		StatusCode: status,
		Op:         op,
		Body:       body,
		Message:    http.StatusText(status),
	}

	if parsed, err := masto.ParseResponseError(body); err == nil && parsed.Error != "" {
		apiErr.Message = parsed.Error
		apiErr.Description = parsed.ErrorDescription
		apiErr.Details = parsed.Details
	}

	if status == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	}

	return apiErr
}

func kindForStatus(status int) masto.ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return masto.KindUnauthorized
	case http.StatusNotFound:
		return masto.KindNotFound
	case http.StatusTooManyRequests:
		return masto.KindRateLimited
	case http.StatusUnprocessableEntity:
		return masto.KindValidation
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return masto.KindNetwork
	default:
		return masto.KindUnknown
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP-date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}

		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}

	return 0
}

// classifyTransportError maps failures that produced no HTTP response.
func classifyTransportError(ctx context.Context, op string, err error) *masto.Error {
	apiErr := &masto.Error{Kind: masto.KindNetwork, Op: op, Cause: err}

	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		apiErr.Kind = masto.KindTimeout
		apiErr.Message = "request timed out"
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		apiErr.Message = "request canceled"
		apiErr.Cause = context.Canceled
	case errors.As(err, &netErr) && netErr.Timeout():
		apiErr.Kind = masto.KindTimeout
		apiErr.Message = "request timed out"
	}

	return apiErr
}

// withOp stamps op on an engine error that lacks one.
func withOp(err error, op string) error {
	apiErr := &masto.Error{}
	if errors.As(err, &apiErr) {
		apiErr.Op = op
	}

	return err
}
