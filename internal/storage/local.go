package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// MediaPrefix is the URL path under which local blobs are served.
const MediaPrefix = "/media/"

// LocalStore keeps blobs on an afero filesystem.
type LocalStore struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at root on the OS filesystem.
// baseURL is prepended to MediaPrefix when building blob URLs.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root), baseURL), nil
}

// NewLocalStoreFs creates a LocalStore over an existing filesystem.
func NewLocalStoreFs(fs afero.Fs, baseURL string) *LocalStore {
	return &LocalStore{fs: fs, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Fs exposes the underlying filesystem for serving.
func (s *LocalStore) Fs() afero.Fs {
	return s.fs
}

func (s *LocalStore) Put(_ context.Context, key string, body io.Reader, _ string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	// Write to a sibling then rename so readers never see a partial blob.
	tmp := name + ".tmp"
	if err := afero.WriteReader(s.fs, tmp, body); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	name, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, name)
}

func (s *LocalStore) URL(key string) string {
	return s.baseURL + MediaPrefix + strings.TrimPrefix(key, "/")
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	name := path.Clean("/" + key)
	if name == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return name, nil
}
