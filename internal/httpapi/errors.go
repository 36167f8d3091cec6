// Package httpapi implements the operator HTTP surface: command endpoints
// over an EngineRegistry, MJPEG/WS streaming mounts, and session reports,
// replacing this codebase's goa-generated transport layer with a
// hand-routed go-chi one. The three JSON error shapes (NotFoundError,
// BadRequestError, InternalError) are carried over from the teacher's goa
// design (design/design.go) and now produced by hand.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// NotFoundError mirrors design.NotFoundError.
type NotFoundError struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// BadRequestError mirrors design.BadRequestError.
type BadRequestError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// InternalError mirrors design.InternalError.
type InternalError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, id, message string) {
	writeJSON(w, http.StatusNotFound, NotFoundError{Message: message, ID: id})
}

func badRequest(w http.ResponseWriter, message, details string) {
	writeJSON(w, http.StatusBadRequest, BadRequestError{Message: message, Details: details})
}

func internalError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, InternalError{Message: message})
}

// isAJAX reports whether the request identifies itself as an
// XMLHttpRequest, per the specification's AJAX-detection rule.
func isAJAX(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
