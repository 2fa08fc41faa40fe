package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/tierhost/tierhost/internal/metrics"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
	"github.com/tierhost/tierhost/internal/storage"
	"github.com/tierhost/tierhost/internal/tier"
)

const (
	// sniffLen is how much of an undeclared upload is inspected.
	sniffLen = 3072

	retireAttempts = 3
	retireBackoff  = 20 * time.Millisecond
)

var allSizes = []int{tier.Size200, tier.Size400}

// Upload is an uploaded image part.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// FileInput carries the mutable parts of a file. Name overrides the
// upload's filename when set.
type FileInput struct {
	Name   *string
	Upload *Upload
}

// FileView is a file shaped for a tier. An empty URL means the image
// could not be produced.
type FileView struct {
	File       *model.File
	Shape      tier.Shape
	ImageURL   string
	Thumbnails map[int]string
}

// FileService handles owner-scoped file operations.
type FileService struct {
	files    FileStore
	cache    LinkCache
	blobs    storage.BlobStore
	derived  *DerivedImages
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewFileService creates a new FileService.
func NewFileService(
	files FileStore,
	linkCache LinkCache,
	blobs storage.BlobStore,
	derived *DerivedImages,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *FileService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileService{
		files:    files,
		cache:    linkCache,
		blobs:    blobs,
		derived:  derived,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		logger:   logger,
		metrics:  recorder,
	}
}

// WithClock replaces the time source.
func (s *FileService) WithClock(now func() time.Time) *FileService {
	s.now = now
	return s
}

// List returns every file owned by owner, shaped for the owner's tier.
func (s *FileService) List(ctx context.Context, owner model.User) ([]*FileView, error) {
	files, err := s.files.ListFilesByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	views := make([]*FileView, 0, len(files))
	for _, f := range files {
		views = append(views, s.present(ctx, f, owner.Tier))
	}
	return views, nil
}

// Retrieve returns an owned file.
func (s *FileService) Retrieve(ctx context.Context, owner model.User, id string) (*FileView, error) {
	f, err := s.ownedFile(ctx, owner.ID, id)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, f, owner.Tier), nil
}

// Create stores a new upload. Nothing is persisted when validation fails.
func (s *FileService) Create(ctx context.Context, owner model.User, in FileInput) (*FileView, error) {
	if in.Upload == nil || in.Upload.Body == nil {
		return nil, ErrMissingUpload
	}

	format, body, err := detectFormat(in.Upload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	f := &model.File{
		ID:            generateULID(),
		Name:          uploadName(in.Upload.Filename),
		Format:        format,
		OwnerID:       owner.ID,
		OwnerUsername: owner.Username,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.ImageKey = model.ImageKeyFor(generateULID(), format)
	if in.Name != nil {
		f.Name = *in.Name
	}

	if err := s.validateFile(f); err != nil {
		return nil, err
	}

	if err := s.blobs.Put(ctx, f.ImageKey, body, format.ContentType()); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	if err := s.files.CreateFile(ctx, f); err != nil {
		s.discardBlob(ctx, f.ImageKey)
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	s.metrics.IncFileCreated()
	s.logger.Info("file_created", "file_id", f.ID, "owner_id", f.OwnerID, "format", f.Format)

	return s.present(ctx, f, owner.Tier), nil
}

// Update applies a partial update to an owned file. A new image gets a
// fresh blob key; the old image and its thumbnails are removed afterwards.
func (s *FileService) Update(ctx context.Context, owner model.User, id string, in FileInput) (*FileView, error) {
	current, err := s.ownedFile(ctx, owner.ID, id)
	if err != nil {
		return nil, err
	}

	if (in.Upload == nil || in.Upload.Body == nil) && in.Name == nil {
		return nil, ErrMissingUpload
	}

	updated := *current
	var body io.Reader
	if in.Upload != nil && in.Upload.Body != nil {
		var format model.FileFormat
		format, body, err = detectFormat(in.Upload)
		if err != nil {
			return nil, err
		}
		updated.Format = format
		updated.Name = uploadName(in.Upload.Filename)
		updated.ImageKey = model.ImageKeyFor(generateULID(), format)
	}
	if in.Name != nil {
		updated.Name = *in.Name
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.validateFile(&updated); err != nil {
		return nil, err
	}

	if body != nil {
		if err := s.blobs.Put(ctx, updated.ImageKey, body, updated.Format.ContentType()); err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
	}

	if err := s.files.UpdateFile(ctx, &updated); err != nil {
		if body != nil {
			s.discardBlob(ctx, updated.ImageKey)
		}
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to update file: %w", err)
	}

	if body != nil {
		s.derived.Purge(ctx, current, allSizes...)
	}

	s.metrics.IncFileUpdated()
	s.logger.Info("file_updated", "file_id", updated.ID, "owner_id", updated.OwnerID, "image_replaced", body != nil)

	return s.present(ctx, &updated, owner.Tier), nil
}

// Delete removes an owned file together with every temporary link to it.
func (s *FileService) Delete(ctx context.Context, owner model.User, id string) error {
	f, err := s.ownedFile(ctx, owner.ID, id)
	if err != nil {
		return err
	}

	tokens, err := s.files.DeleteFile(ctx, owner.ID, id)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if err := s.retireTokens(ctx, tokens); err != nil {
		s.logger.Error("temp_link_cache_retire_failed", "file_id", id, "tokens", len(tokens), "error", err)
	}
	s.derived.Purge(ctx, f, allSizes...)

	s.metrics.IncFileDeleted()
	s.logger.Info("file_deleted", "file_id", id, "owner_id", owner.ID, "links_removed", len(tokens))

	return nil
}

// retireTokens evicts the deleted links from the cache and blocks them
// from being cached again. The rows are already gone, so it carries on
// after the request is cancelled and retries briefly.
func (s *FileService) retireTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := range retireAttempts {
		if attempt > 0 {
			time.Sleep(retireBackoff * time.Duration(attempt))
		}
		if err = s.cache.RetireTemporaryLinks(ctx, tokens...); err == nil {
			return nil
		}
	}
	return err
}

func (s *FileService) ownedFile(ctx context.Context, ownerID, id string) (*model.File, error) {
	f, err := s.files.GetOwnedFile(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return f, nil
}

// present shapes f for t, rendering missing thumbnails on the way.
func (s *FileService) present(ctx context.Context, f *model.File, t model.Tier) *FileView {
	shape := tier.ShapeFor(t)
	v := &FileView{
		File:       f,
		Shape:      shape,
		Thumbnails: make(map[int]string, len(shape.DerivedSizes)),
	}
	if shape.ImageURL {
		v.ImageURL = s.blobs.URL(f.ImageKey)
	}

	for _, size := range shape.DerivedSizes {
		key, err := s.derived.Ensure(ctx, f, size)
		if err != nil {
			s.logger.Warn("derived_image_failed", "file_id", f.ID, "size", size, "error", err)
			v.Thumbnails[size] = ""
			continue
		}
		v.Thumbnails[size] = s.blobs.URL(key)
	}

	return v
}

func (s *FileService) validateFile(f *model.File) error {
	err := s.validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate file: %w", err)
	}
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Name":
			if fe.Tag() == "required" {
				return ErrBlankName
			}
			return ErrInvalidName
		case "Format":
			return ErrInvalidFormat
		}
	}
	return fmt.Errorf("invalid file record: %w", err)
}

func (s *FileService) discardBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("blob_cleanup_failed", "key", key, "error", err)
	}
}

// detectFormat resolves the upload's format from its declared content
// type. Undeclared types are sniffed from the leading bytes.
func detectFormat(u *Upload) (model.FileFormat, io.Reader, error) {
	contentType := u.ContentType
	body := u.Body

	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(body, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", nil, fmt.Errorf("failed to read upload: %w", err)
		}
		head = head[:n]
		contentType = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), body)
	}

	format, ok := model.FormatFromContentType(contentType)
	if !ok {
		return "", nil, ErrInvalidFormat
	}
	return format, body, nil
}

// uploadName returns the base name of a client-supplied filename.
func uploadName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSpace(name)
}
