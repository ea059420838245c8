// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/vmixd/internal/manager"
	"github.com/ManuGH/vmixd/internal/vmix"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBadRequest writes a 400 with the validation error.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// writeNotFound writes a 404 Not Found response.
func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// writeServiceError maps supervisor and transport errors to HTTP
// status codes: unknown hosts are 404, upstream vMix failures 502,
// shutdown 503, anything else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrUnknownHost):
		writeNotFound(w)
	case errors.Is(err, manager.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	default:
		var ce *manager.ConnectError
		if errors.As(err, &ce) ||
			errors.Is(err, vmix.ErrNetwork) ||
			errors.Is(err, vmix.ErrTimeout) ||
			errors.Is(err, vmix.ErrProtocol) ||
			errors.Is(err, vmix.ErrClosed) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
