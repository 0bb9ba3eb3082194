// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
	"github.com/ManuGH/myth2dsv/internal/session"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	code, kind := classify(err)
	writeJSON(w, code, errorBody{Error: kind, Detail: err.Error()})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Detail: detail})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrUnknownRecording):
		return http.StatusNotFound, "unknown_recording"
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, session.ErrShutdown):
		return http.StatusServiceUnavailable, "shut_down"
	case errors.Is(err, encode.ErrEmptyRecording):
		return http.StatusUnprocessableEntity, "empty_recording"
	case errors.Is(err, encode.ErrSubprocessLaunch):
		return http.StatusInternalServerError, "encoder_launch_failed"
	case errors.Is(err, mythtv.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, mythtv.ErrConnection), errors.Is(err, mythtv.ErrQuery), errors.Is(err, mythtv.ErrStreamIO):
		return http.StatusBadGateway, "backend_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
