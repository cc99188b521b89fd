package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	idempotency "github.com/ledgerline/idempotency-api/internal/app/idempotency"
)

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var eb errorBody
	eb.Error.Code = code
	eb.Error.Message = message
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		eb.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(eb)
}

// writeEngineError maps the execution error taxonomy onto HTTP. Engine errors
// carry their own status; anything else is a plain 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	ae := (*idempotency.Error)(nil)
	if errors.As(err, &ae) {
		writeError(w, r, ae.Status, ae.Code, ae.Message)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "request failed")
}
