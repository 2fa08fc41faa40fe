package model

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
)

// FileFormat is the stored format of an uploaded image.
type FileFormat string

const (
	FormatPNG  FileFormat = "PNG"
	FormatJPEG FileFormat = "JPEG"
)

// MaxFileNameLength is the maximum length of a file's display name.
const MaxFileNameLength = 50

// contentTypeFormats is the strict allow-list of upload content types.
var contentTypeFormats = map[string]FileFormat{
	"image/png":  FormatPNG,
	"image/jpeg": FormatJPEG,
}

// FormatFromContentType maps a declared content type to a FileFormat.
// Parameters such as charset are ignored; anything else not on the
// allow-list is rejected.
func FormatFromContentType(contentType string) (FileFormat, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	format, ok := contentTypeFormats[strings.ToLower(mediaType)]
	return format, ok
}

// IsValid checks if the format is one of the accepted image formats.
func (f FileFormat) IsValid() bool {
	return f == FormatPNG || f == FormatJPEG
}

// ContentType returns the MIME type for the format.
func (f FileFormat) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Extension returns the file extension for the format, including the dot.
func (f FileFormat) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// File is an uploaded image owned by exactly one user.
type File struct {
	ID            string     `json:"id"`
	Name          string     `json:"name" validate:"required,max=50"`
	Format        FileFormat `json:"file_format" validate:"required,oneof=PNG JPEG"`
	OwnerID       string     `json:"created_by_id" validate:"required"`
	OwnerUsername string     `json:"created_by"`
	ImageKey      string     `json:"-" validate:"required"`
	CreatedAt     time.Time  `json:"date_started"`
	UpdatedAt     time.Time  `json:"last_edited"`
}

// IsOwnedBy reports whether the file belongs to the given user.
func (f *File) IsOwnedBy(userID string) bool {
	return f.OwnerID == userID
}

// DerivedKey returns the blob key of the derived image at the given size.
// Keys are derived from the primary image key, so replacing the image
// also retires every previously rendered derivative.
func (f *File) DerivedKey(size int) string {
	base := strings.TrimSuffix(f.ImageKey, path.Ext(f.ImageKey))
	return fmt.Sprintf("derived/%s_%d.jpg", strings.TrimPrefix(base, "images/"), size)
}

// ImageKeyFor builds the blob key for a primary image. blobID must not be
// the file id: media is served without auth, so the key has to be
// unguessable from anything an API response exposes.
func ImageKeyFor(blobID string, format FileFormat) string {
	return "images/" + blobID + format.Extension()
}
