// Package handlers implements the HTTP endpoints of the prior-art service.
package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(data)
	}
}
