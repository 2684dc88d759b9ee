package httpadapter

import (
	"net/http"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

// writeError maps domain failures to HTTP statuses. Unavailability never
// leaks backend detail to the caller, only a uniform retry hint.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, status, map[string]string{"error": "retrieval temporarily unavailable"})
		return
	}
	if status >= 500 {
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func mapErrorToHTTPStatus(err error) int {
	if _, ok := domain.ResilienceKindOf(err); ok {
		return http.StatusServiceUnavailable
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrAllBackendsFailed):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
