package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/handler/dto"
	"github.com/tierhost/tierhost/internal/service"
)

const (
	uploadField = "new_file"
	nameField   = "name"

	// multipartMemory is how much of a form is kept in memory before
	// spilling to temporary files.
	multipartMemory = 8 << 20
)

// FileHandler handles HTTP requests for file operations.
type FileHandler struct {
	svc           *service.FileService
	publicBaseURL string
	maxUpload     int64
	logger        *slog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(svc *service.FileService, publicBaseURL string, maxUpload int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		svc:           svc,
		publicBaseURL: publicBaseURL,
		maxUpload:     maxUpload,
		logger:        logger,
	}
}

// List handles GET /images/.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	views, err := h.svc.List(r.Context(), principal.User())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToFileListResponse(views, baseURL(r, h.publicBaseURL)))
}

// Get handles GET /images/{id}/.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	view, err := h.svc.Retrieve(r.Context(), principal.User(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToFileResponse(view, baseURL(r, h.publicBaseURL)))
}

// Create handles POST /images/ with a multipart new_file part.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	input, cleanup, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	view, err := h.svc.Create(r.Context(), principal.User(), input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToFileResponse(view, baseURL(r, h.publicBaseURL)))
}

// Update handles PUT /images/{id}/.
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	input, cleanup, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	view, err := h.svc.Update(r.Context(), principal.User(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToFileResponse(view, baseURL(r, h.publicBaseURL)))
}

// Delete handles DELETE /images/{id}/.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	if err := h.svc.Delete(r.Context(), principal.User(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ResultResponse{Result: "Image deleted"})
}

// readForm parses the multipart body into a FileInput. A body that is
// not multipart yields an empty input so the service reports the
// missing upload. It writes the response itself when ok is false.
func (h *FileHandler) readForm(w http.ResponseWriter, r *http.Request) (service.FileInput, func(), bool) {
	var input service.FileInput
	noop := func() {}

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, MsgUploadTooLarge)
			return input, noop, false
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return input, noop, true
		}
		writeError(w, http.StatusBadRequest, MsgMissingUpload)
		return input, noop, false
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	if values, ok := r.MultipartForm.Value[nameField]; ok && len(values) > 0 {
		name := values[0]
		input.Name = &name
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return input, cleanup, true
		}
		cleanup()
		writeError(w, http.StatusBadRequest, MsgMissingUpload)
		return input, noop, false
	}

	input.Upload = uploadFrom(file, header)
	return input, func() {
		_ = file.Close()
		cleanup()
	}, true
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) *service.Upload {
	return &service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
}
