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
	var verr *ValidationErrors
	switch {
	case errors.As(err, &verr):
		WriteProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: "request contains invalid fields",
			Kind:   "validation_error",
			Errors: verr.Fields,
		})
	case errors.Is(err, ErrNotFound):
		WriteProblem(w, ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Kind: "not_found"})
	case errors.Is(err, ErrDuplicate):
		WriteProblem(w, ProblemDetail{Title: "Duplicate", Status: http.StatusConflict, Detail: err.Error(), Kind: "duplicate"})
	case errors.Is(err, ErrConflict):
		WriteProblem(w, ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: err.Error(), Kind: "conflict"})
	case errors.Is(err, ErrValidation):
		WriteProblem(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(), Kind: "validation_error"})
	case errors.Is(err, ErrForbidden):
		WriteProblem(w, ProblemDetail{Title: "Forbidden", Status: http.StatusForbidden, Detail: err.Error(), Kind: "forbidden"})
	case errors.Is(err, ErrUnauthorized):
		WriteProblem(w, ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error(), Kind: "unauthorized"})
	default:
		WriteProblem(w, ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError, Kind: "server_error"})
	}
}
