package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spigell/job-aggregator/internal/listing"
)

// Reason codes reported per source.
const (
	ReasonTimeout          = "timeout"
	ReasonHTTPError        = "http_error"
	ReasonMalformedPayload = "malformed_payload"
	ReasonNetworkError     = "network_error"
	ReasonRateLimited      = "rate_limited"
	ReasonNotConfigured    = "not_configured"
	ReasonUnknownSource    = "unknown_source"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotConfigured    = errors.New("connector is not configured")
	ErrRateLimited      = errors.New("rate limited")
)

// Error is a failure of one source. It never aborts an aggregation.
type Error struct {
	Source listing.Source
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx provider answer.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %s", e.Status)
	}
	return fmt.Sprintf("bad status: %s: %s", e.Status, e.Body)
}

// NewError builds a connector error with an explicit reason.
func NewError(source listing.Source, reason string, err error) *Error {
	return &Error{Source: source, Reason: reason, Err: err}
}

// Classify maps any error a connector produced to a connector error with a reason code.
func Classify(source listing.Source, err error) *Error {
	if err == nil {
		return nil
	}

	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Source == "" {
			cerr.Source = source
		}
		return cerr
	}

	return NewError(source, reasonFor(err), err)
}

func reasonFor(err error) string {
	var statusErr *StatusError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrNotConfigured):
		return ReasonNotConfigured
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.As(err, &statusErr):
		if statusErr.Code == http.StatusTooManyRequests {
			return ReasonRateLimited
		}
		return ReasonHTTPError
	case errors.Is(err, ErrMalformedPayload), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ReasonMalformedPayload
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	default:
		return ReasonNetworkError
	}
}
