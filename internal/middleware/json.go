package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes {"error": msg, "code": code}; code is omitted when empty.
func writeError(w http.ResponseWriter, status int, msg, code string) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
