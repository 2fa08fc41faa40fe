// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"

	"github.com/tierhost/tierhost/internal/events"
	"github.com/tierhost/tierhost/internal/model"
)

// Service errors.
var (
	ErrForbiddenTier   = errors.New("account tier does not support this feature")
	ErrFileNotFound    = errors.New("file not found")
	ErrLinkNotFound    = errors.New("link not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrLinkExpired     = errors.New("link is expired")
	ErrInvalidDuration = errors.New("invalid link duration")
	ErrInvalidFormat   = errors.New("invalid file format")
	ErrInvalidName     = errors.New("invalid file name")
	ErrBlankName       = errors.New("file name is blank")
	ErrMissingUpload   = errors.New("no file was submitted")
)

// DurationError reports a requested link lifetime outside the allowed range.
// Raw is echoed back exactly as the client sent it.
type DurationError struct {
	Raw string
	Min int
	Max int
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("Time requested: %s. Allowed range: %d-%d", e.Raw, e.Min, e.Max)
}

func (e *DurationError) Unwrap() error { return ErrInvalidDuration }

// FileStore persists files. Implemented by repository.Repository.
type FileStore interface {
	CreateFile(ctx context.Context, f *model.File) error
	GetFileByID(ctx context.Context, id string) (*model.File, error)
	GetOwnedFile(ctx context.Context, ownerID, id string) (*model.File, error)
	ListFilesByOwner(ctx context.Context, ownerID string) ([]*model.File, error)
	UpdateFile(ctx context.Context, f *model.File) error
	DeleteFile(ctx context.Context, ownerID, id string) ([]string, error)
}

// LinkStore persists temporary links. Implemented by repository.Repository.
type LinkStore interface {
	CreateTemporaryLink(ctx context.Context, l *model.TemporaryLink) error
	GetTemporaryLinkByToken(ctx context.Context, token string) (*model.TemporaryLink, error)
}

// UserStore reads user accounts. Implemented by repository.Repository.
type UserStore interface {
	GetUserDetail(ctx context.Context, id string) (*model.UserDetail, error)
	ListUserDetails(ctx context.Context) ([]*model.UserDetail, error)
}

// LinkCache is the token-keyed link cache. Implemented by cache.Cache.
type LinkCache interface {
	GetTemporaryLink(ctx context.Context, token string) (*model.TemporaryLink, error)
	SetTemporaryLink(ctx context.Context, link *model.TemporaryLink) error
	RetireTemporaryLinks(ctx context.Context, tokens ...string) error
	IsNegativelyCached(ctx context.Context, token string) (bool, error)
	SetNegativeCache(ctx context.Context, token string) error
}

// EventPublisher emits link lifecycle events. Implemented by events.Publisher.
type EventPublisher interface {
	PublishAsync(event events.Event)
}

// ImageProcessor renders derived images. Implemented by imaging.Processor.
type ImageProcessor interface {
	Thumbnail(src io.Reader, size int) ([]byte, error)
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(events.Event) {}

// generateULID generates a new ULID string.
func generateULID() string {
	return ulid.Make().String()
}
