// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tierhost/tierhost/internal/handler/dto"
	"github.com/tierhost/tierhost/internal/service"
)

// Client-facing error messages.
const (
	MsgUnauthenticated  = "Authentication credentials were not provided."
	MsgForbiddenTier    = "Given account tier does not support this feature"
	MsgPermissionDenied = "You do not have permission to perform this action."
	MsgNotFound         = "Not found."
	MsgInvalidFormat    = "Invalid file format"
	MsgLinkExpired      = "This url has expired"
	MsgNameTooLong      = "Ensure this field has no more than 50 characters."
	MsgNameBlank        = "This field may not be blank."
	MsgMissingUpload    = "No file was submitted."
	MsgUploadTooLarge   = "Uploaded file is too large."
	MsgMethodNotAllowed = "Method not allowed."
	MsgInternal         = "An internal error occurred"
)

// Handler serves the router-level fallbacks.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, MsgNotFound)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message})
}

// writeServiceError maps service errors to exactly one status and message.
// Anything unrecognized is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var durErr *service.DurationError

	switch {
	case errors.Is(err, service.ErrForbiddenTier):
		writeError(w, http.StatusForbidden, MsgForbiddenTier)
	case errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrLinkNotFound),
		errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, MsgNotFound)
	case errors.As(err, &durErr):
		writeError(w, http.StatusBadRequest, durErr.Error())
	case errors.Is(err, service.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, MsgInvalidFormat)
	case errors.Is(err, service.ErrInvalidName):
		writeError(w, http.StatusBadRequest, MsgNameTooLong)
	case errors.Is(err, service.ErrBlankName):
		writeError(w, http.StatusBadRequest, MsgNameBlank)
	case errors.Is(err, service.ErrMissingUpload):
		writeError(w, http.StatusBadRequest, MsgMissingUpload)
	case errors.Is(err, service.ErrLinkExpired):
		writeError(w, http.StatusGone, MsgLinkExpired)
	default:
		logger.Error("internal_error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, MsgInternal)
	}
}

// baseURL returns the public origin for absolute links. The configured
// value wins; otherwise it is derived from the request.
func baseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// clientIP returns the caller's address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
