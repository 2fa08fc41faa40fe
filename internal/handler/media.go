package handler

import (
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/tierhost/tierhost/internal/storage"
)

// MediaHandler serves blobs of the local storage backend.
type MediaHandler struct {
	files http.Handler
}

// NewMediaHandler creates a MediaHandler over fs. Directory listings
// are not served.
func NewMediaHandler(fs afero.Fs) *MediaHandler {
	httpFs := afero.NewHttpFs(fs)
	return &MediaHandler{
		files: http.StripPrefix(storage.MediaPrefix, http.FileServer(noDirFS{httpFs.Dir("/")})),
	}
}

// Serve handles GET /media/*.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	h.files.ServeHTTP(w, r)
}

// noDirFS hides directories so the file server cannot list them.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
