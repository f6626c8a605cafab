package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const (
	ReasonTimeout         = "timeout"
	ReasonHTTPError       = "http_error"
	ReasonMalformedOutput = "malformed_output"
	ReasonUnavailable     = "unavailable"
)

var ErrMalformedOutput = errors.New("malformed model output")

// ClassificationError is a failure to classify one listing. It never aborts a batch.
type ClassificationError struct {
	ListingID string
	Reason    string
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %s: %v", e.ListingID, e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

func newClassificationError(listingID string, err error) *ClassificationError {
	var cerr *ClassificationError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &ClassificationError{ListingID: listingID, Reason: reasonFor(err), Err: err}
}

func reasonFor(err error) string {
	var coder statusCoder
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrMalformedOutput):
		return ReasonMalformedOutput
	case errors.As(err, &coder):
		return statusReason(coder.StatusCode())
	case errors.As(err, &apiErr):
		return statusReason(apiErr.Code)
	case errors.As(err, &apiErrPtr):
		return statusReason(apiErrPtr.Code)
	default:
		return ReasonUnavailable
	}
}

func statusReason(code int) string {
	if code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout {
		return ReasonTimeout
	}
	return ReasonHTTPError
}
