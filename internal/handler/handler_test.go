package handler

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/imaging"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/service"
	"github.com/tierhost/tierhost/internal/service/servicetest"
	"github.com/tierhost/tierhost/internal/storage"
	"github.com/tierhost/tierhost/internal/token"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store  *servicetest.MemStore
	cache  *servicetest.MemCache
	clock  *servicetest.Clock
	blobs  *storage.LocalStore
	router chi.Router
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()

	env := &testEnv{
		store: servicetest.NewMemStore(),
		cache: servicetest.NewMemCache(),
		clock: servicetest.NewClock(testEpoch),
		blobs: storage.NewLocalStoreFs(afero.NewMemMapFs(), ""),
	}
	logger := discardLogger()

	derived := service.NewDerivedImages(env.blobs, imaging.NewProcessor(0), logger, nil)
	files := service.NewFileService(env.store, env.cache, env.blobs, derived, logger, nil).WithClock(env.clock.Now)
	links := service.NewTempLinkService(env.store, env.store, env.cache, nil, service.DefaultLinkPolicy(), logger, nil).
		WithClock(env.clock.Now).
		WithTokenGenerator(token.Sequence("tokaaaaaaaaaaaaaaaa1", "tokaaaaaaaaaaaaaaaa2"))

	fh := NewFileHandler(files, "", maxUpload, logger)
	th := NewTempLinkHandler(links, "", logger)
	uh := NewUserHandler(service.NewUserService(env.store), logger)
	h := New()

	r := chi.NewRouter()
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)
	r.Get("/images/", fh.List)
	r.Post("/images/", fh.Create)
	r.Get("/images/{id}/", fh.Get)
	r.Put("/images/{id}/", fh.Update)
	r.Delete("/images/{id}/", fh.Delete)
	r.Get("/exp/generate/{fileID}/", th.Generate)
	r.Get("/exp/use/{token}/", th.Redeem)
	r.Get("/users/", uh.List)
	r.Get("/users/{id}/", uh.Get)
	r.Get("/media/*", NewMediaHandler(env.blobs.Fs()).Serve)
	env.router = r

	return env
}

func (e *testEnv) user(id string, tier model.Tier) *model.AuthContext {
	u := e.store.AddUser(model.User{ID: id, Username: "user-" + id, Tier: tier})
	return &model.AuthContext{UserID: u.ID, Username: u.Username, Tier: u.Tier}
}

// do sends a request as p; a nil p is anonymous.
func (e *testEnv) do(t *testing.T, p *model.AuthContext, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// upload creates a file for p through the API and returns its id.
func (e *testEnv) upload(t *testing.T, p *model.AuthContext, name string) string {
	t.Helper()
	body, ct := multipartBody(t, uploadField, name, "image/png", servicetest.PNG(t, 40, 20), nil)
	req := httptest.NewRequest(http.MethodPost, "/images/", body)
	req.Header.Set("Content-Type", ct)

	rec := e.do(t, p, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	return decodeMap(t, rec)["id"].(string)
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return m
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, status, rec.Body)
		return
	}
	if got := decodeMap(t, rec)["error"]; got != message {
		t.Errorf("error = %q, want %q", got, message)
	}
}

func TestHandler_Fallbacks(t *testing.T) {
	t.Parallel()

	h := New()

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))
	assertError(t, rec, http.StatusNotFound, MsgNotFound)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assertError(t, rec, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWriteServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"forbidden_tier", service.ErrForbiddenTier, http.StatusForbidden, MsgForbiddenTier},
		{"file_not_found", service.ErrFileNotFound, http.StatusNotFound, MsgNotFound},
		{"link_not_found", service.ErrLinkNotFound, http.StatusNotFound, MsgNotFound},
		{"user_not_found", service.ErrUserNotFound, http.StatusNotFound, MsgNotFound},
		{"duration", &service.DurationError{Raw: "5", Min: 300, Max: 30000}, http.StatusBadRequest, "Time requested: 5. Allowed range: 300-30000"},
		{"format", service.ErrInvalidFormat, http.StatusBadRequest, MsgInvalidFormat},
		{"name", service.ErrInvalidName, http.StatusBadRequest, MsgNameTooLong},
		{"blank_name", service.ErrBlankName, http.StatusBadRequest, MsgNameBlank},
		{"missing_upload", service.ErrMissingUpload, http.StatusBadRequest, MsgMissingUpload},
		{"expired", service.ErrLinkExpired, http.StatusGone, MsgLinkExpired},
		{"wrapped", fmt.Errorf("outer: %w", service.ErrLinkExpired), http.StatusGone, MsgLinkExpired},
		{"internal", errors.New("pq: password authentication failed for user admin"), http.StatusInternalServerError, MsgInternal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), discardLogger(), test.err)
			assertError(t, rec, test.status, test.message)
		})
	}
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	plain := httptest.NewRequest(http.MethodGet, "http://img.example.com/x", nil)

	secure := httptest.NewRequest(http.MethodGet, "https://img.example.com/x", nil)
	secure.TLS = &tls.ConnectionState{}

	proxied := httptest.NewRequest(http.MethodGet, "http://img.example.com/x", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")

	tests := []struct {
		name       string
		req        *http.Request
		configured string
		want       string
	}{
		{"request", plain, "", "http://img.example.com"},
		{"tls", secure, "", "https://img.example.com"},
		{"forwarded_proto", proxied, "", "https://img.example.com"},
		{"configured", plain, "https://cdn.example.com/", "https://cdn.example.com"},
	}

	for _, test := range tests {
		if got := baseURL(test.req, test.configured); got != test.want {
			t.Errorf("%s: baseURL = %q, want %q", test.name, got, test.want)
		}
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
