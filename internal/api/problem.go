package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/query"
	"github.com/hyperengineering/nestegg/internal/validation"
)

const problemBase = "https://nestegg.dev/errors/"

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemSlugs names the type URI for each status the API answers with.
// Other statuses fall back to "unknown" and the standard status text.
var problemSlugs = map[int]string{
	http.StatusBadRequest:            "bad-request",
	http.StatusUnauthorized:          "unauthorized",
	http.StatusNotFound:              "not-found",
	http.StatusRequestEntityTooLarge: "payload-too-large",
	http.StatusUnprocessableEntity:   "validation-error",
	http.StatusTooManyRequests:       "rate-limit",
	http.StatusInternalServerError:   "internal-error",
	http.StatusServiceUnavailable:    "service-unavailable",
}

func newProblem(r *http.Request, status int, detail string) Problem {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = "unknown"
	}
	title := http.StatusText(status)
	if status == http.StatusUnprocessableEntity {
		title = "Validation Error"
	}
	return Problem{
		Type:     problemBase + slug,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors is a validation problem carrying one entry per field.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 response listing errs.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	status := http.StatusUnprocessableEntity
	writeProblemBody(w, status, ProblemWithErrors{
		Problem: newProblem(r, status, detail),
		Errors:  errs,
	})
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// MapStoreError converts goal store and envelope errors to Problem Details
// responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, goals.ErrValidation):
		WriteProblemWithErrors(w, r, "Request contains invalid fields", goals.FieldErrors(err))
	case errors.Is(err, goals.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Goal not found")
	case errors.Is(err, goals.ErrTransactionNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, goals.ErrNotReady):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Goals are still loading")
	case errors.Is(err, query.ErrInvalidFilter):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, envelope.ErrUnsupportedVersion):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "Export was written by a newer version")
	case errors.Is(err, envelope.ErrCorrupt):
		WriteProblem(w, r, http.StatusBadRequest, "Export is not a valid goals document")
	default:
		// Never expose internal error details to client
		slog.Error("unhandled store error", "component", "api", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
