// Package api contains helpers for the JSON API handlers.
package api

import (
	"encoding/json"
	"net/http"
)

// JSONError encodes err as a JSON error object to w with statusCode.
// A statusCode less than one means internal server error.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	jsonErr := &struct {
		Err string `json:"error"`
	}{Err: err.Error()}
	w.Header().Set("Content-type", "application/json")
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonErr)
}
