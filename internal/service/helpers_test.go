package service

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"

	"github.com/tierhost/tierhost/internal/imaging"
	"github.com/tierhost/tierhost/internal/service/servicetest"
	"github.com/tierhost/tierhost/internal/storage"
)

func newMemBlobs() *storage.LocalStore {
	return storage.NewLocalStoreFs(afero.NewMemMapFs(), "http://media.test")
}

func newTestDerived(blobs storage.BlobStore) *DerivedImages {
	return NewDerivedImages(blobs, imaging.NewProcessor(0), nil, nil)
}

func jpegUpload(t *testing.T) *Upload {
	t.Helper()
	return &Upload{Filename: "new.jpg", ContentType: "image/jpeg", Body: bytes.NewReader(servicetest.JPEG(t, 40, 80))}
}
