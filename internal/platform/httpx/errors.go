// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		WriteProblem(w, ProblemDetail{Status: http.StatusNotFound, Title: "Not Found", Detail: err.Error(), Code: "not_found"})
	case errors.Is(err, ErrDuplicate):
		WriteProblem(w, ProblemDetail{Status: http.StatusConflict, Title: "Duplicate", Detail: err.Error(), Code: "duplicate"})
	case errors.Is(err, ErrConflict):
		WriteProblem(w, ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Detail: err.Error(), Code: "conflict", Retryable: true})
	case errors.Is(err, ErrValidation):
		WriteProblem(w, ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Detail: err.Error(), Code: "validation"})
	case errors.Is(err, ErrForbidden):
		WriteProblem(w, ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: err.Error(), Code: "forbidden"})
	case errors.Is(err, ErrUnauthorized):
		WriteProblem(w, ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Detail: err.Error(), Code: "unauthorized"})
	default:
		WriteProblem(w, ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error", Code: "internal"})
	}
}
