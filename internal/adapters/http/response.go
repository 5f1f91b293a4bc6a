package http

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess flattens payload fields next to the success flag, matching the
// envelope clients already consume.
func writeSuccess(w http.ResponseWriter, statusCode int, payload map[string]any) {
	body := map[string]any{"success": true}
	for key, value := range payload {
		body[key] = value
	}
	writeJSON(w, statusCode, body)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeSuccess(w, statusCode, map[string]any{"message": message})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
