// Package response renders the JSON shapes the gateway's own endpoints
// return (health, stats, recaptcha verification, config-cache misses).
// Trimmed from the teacher's broader admin-API envelope down to the
// subset this surface actually calls.
package response

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// errorBody is the {error, detail} shape spec §6 uses for the 404
// config-cache-miss and 503 dependency-unavailable responses.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data as a JSON body with the given status code.
func JSON(w http.ResponseWriter, log *zap.SugaredLogger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("response: failed to encode JSON body", "error", err)
	}
}

// Error writes the {error, detail} envelope.
func Error(w http.ResponseWriter, log *zap.SugaredLogger, statusCode int, message, detail string) {
	JSON(w, log, errorBody{Error: message, Detail: detail}, statusCode)
}
