package middleware

import (
	"encoding/json"
	"net/http"
)

// Response messages written by middleware.
const (
	MsgUnauthenticated  = "Authentication credentials were not provided."
	MsgPermissionDenied = "You do not have permission to perform this action."
	MsgNotFound         = "Not found."
	MsgInternal         = "An internal error occurred"
	MsgTooLarge         = "Uploaded file is too large."
)

// writeError writes the API's standard error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
