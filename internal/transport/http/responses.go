package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"warden/internal/guard"
	"warden/pkg/requestcontext"
)

// statusForKind is the single place where envelope failure kinds become HTTP
// status codes.
func statusForKind(kind guard.ErrorKind) int {
	switch kind {
	case guard.KindAccessDenied:
		return http.StatusForbidden
	case guard.KindInvalidContext, guard.KindInvalidResult:
		return http.StatusUnprocessableEntity
	case guard.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeOperationError translates a failed guarded operation into a JSON error
// response. Body errors carry no envelope kind and map to 500 without leaking
// their message to the client.
func (h *Handler) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := guard.KindOf(err)
	if !ok {
		h.logger.ErrorContext(r.Context(), "operation failed",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	body := map[string]any{"error": string(kind)}
	var ge *guard.Error
	if errors.As(err, &ge) && len(ge.Reasons) > 0 {
		body["reasons"] = ge.Reasons
	}
	writeJSON(w, statusForKind(kind), body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
