// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Error kinds handlers attach to domain errors before responding.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable")
	ErrNotGenerated   = errors.New("report not generated")
	ErrRequestTimeout = errors.New("request timed out")
)

type classified struct {
	kind error
	err  error
}

func (c classified) Error() string   { return c.err.Error() }
func (c classified) Unwrap() []error { return []error{c.kind, c.err} }

// Classify tags err with an HTTP error kind while keeping its message and
// chain intact.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	return classified{kind: kind, err: err}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrNotGenerated):
		Problem(w, http.StatusServiceUnavailable, "Report Not Generated", err.Error())
	case errors.Is(err, ErrRequestTimeout):
		Problem(w, http.StatusGatewayTimeout, "Timeout", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
