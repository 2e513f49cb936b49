package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/retailcore/go-order-settlement/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses. Messages pass through;
// wrapped causes do not.
func writeError(w http.ResponseWriter, err error) {
	var code int
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = http.StatusBadRequest
	case apperr.KindNotFound:
		code = http.StatusNotFound
	case apperr.KindUnauthorized:
		code = http.StatusForbidden
	case apperr.KindInvalidState:
		code = http.StatusConflict
	case apperr.KindConflict:
		code = http.StatusConflict
	case apperr.KindTransient:
		code = http.StatusServiceUnavailable
	default:
		slog.Error("unclassified error", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	msg := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
