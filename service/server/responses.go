package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const maxRequestBodySize = 1 << 20 // 1MB, plenty for any request here

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// writeData writes a successful response carrying data.
func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data})
}

// writeMessage writes a successful response with a message and optional data.
func writeMessage(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Message: message, Data: data})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, envelope{Success: false, Error: message})
}

// writeErrors writes a JSON response carrying multiple error details.
func writeErrors(w http.ResponseWriter, messages []string, statusCode int) {
	env := envelope{Success: false, Errors: messages}
	if len(messages) > 0 {
		env.Error = messages[0]
	}
	writeJSON(w, statusCode, env)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a size-limited JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
