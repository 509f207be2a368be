package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeUpstreamError reports a failed call to the node: 408 when the
// request ran out of time, msg with 500 otherwise.
func writeUpstreamError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusRequestTimeout, "Request timeout.")
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}
