package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/tierhost/tierhost/internal/metrics"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/storage"
)

// DerivedImages renders thumbnails on first read and keeps them in the
// blob store next to the primary image.
type DerivedImages struct {
	blobs     storage.BlobStore
	processor ImageProcessor
	logger    *slog.Logger
	metrics   metrics.Recorder
	group     singleflight.Group
}

// NewDerivedImages creates a new DerivedImages.
func NewDerivedImages(blobs storage.BlobStore, processor ImageProcessor, logger *slog.Logger, recorder metrics.Recorder) *DerivedImages {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DerivedImages{
		blobs:     blobs,
		processor: processor,
		logger:    logger,
		metrics:   recorder,
	}
}

// Ensure returns the blob key of the size x size thumbnail of f,
// rendering it if it does not exist yet.
func (d *DerivedImages) Ensure(ctx context.Context, f *model.File, size int) (string, error) {
	key := f.DerivedKey(size)

	exists, err := d.blobs.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to stat derived image: %w", err)
	}
	if exists {
		d.metrics.IncDerivedImage(size, false)
		return key, nil
	}

	// Concurrent readers of the same file share one render, so it must
	// not die with whichever request happened to start it.
	renderCtx := context.WithoutCancel(ctx)
	_, err, _ = d.group.Do(key, func() (any, error) {
		return nil, d.render(renderCtx, f.ImageKey, key, size)
	})
	if err != nil {
		return "", err
	}

	d.metrics.IncDerivedImage(size, true)
	d.logger.Debug("derived_image_rendered", "file_id", f.ID, "size", size, "key", key)
	return key, nil
}

func (d *DerivedImages) render(ctx context.Context, srcKey, dstKey string, size int) error {
	src, err := d.blobs.Get(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("failed to open source image: %w", err)
	}
	defer src.Close()

	thumb, err := d.processor.Thumbnail(src, size)
	if err != nil {
		return fmt.Errorf("failed to render thumbnail: %w", err)
	}

	if err := d.blobs.Put(ctx, dstKey, bytes.NewReader(thumb), "image/jpeg"); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}
	return nil
}

// Purge removes the primary image and every derived size of f.
// Missing blobs are ignored.
func (d *DerivedImages) Purge(ctx context.Context, f *model.File, sizes ...int) {
	keys := []string{f.ImageKey}
	for _, size := range sizes {
		keys = append(keys, f.DerivedKey(size))
	}
	for _, key := range keys {
		if err := d.blobs.Delete(ctx, key); err != nil {
			d.logger.Warn("blob_cleanup_failed", "file_id", f.ID, "key", key, "error", err)
		}
	}
}
