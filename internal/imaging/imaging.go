// Package imaging renders fixed-size derived images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

// JPEGQuality is the encoder quality used for every derived image.
const JPEGQuality = 60

// DefaultMaxPixels bounds decoded source images (width*height).
const DefaultMaxPixels = 50_000_000

var (
	// ErrDecode indicates the source is not a decodable PNG or JPEG.
	ErrDecode = errors.New("decode image")
	// ErrTooLarge indicates the source dimensions exceed the pixel limit.
	ErrTooLarge = errors.New("image too large")
)

// Processor renders square, resize-to-fill thumbnails encoded as JPEG.
type Processor struct {
	maxPixels int64
	scaler    draw.Scaler
}

// NewProcessor creates a Processor. maxPixels <= 0 uses DefaultMaxPixels.
func NewProcessor(maxPixels int64) *Processor {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Processor{maxPixels: maxPixels, scaler: draw.CatmullRom}
}

// Thumbnail reads an image from src and returns a size x size JPEG.
// The source is center-cropped to the target aspect ratio before scaling.
func (p *Processor) Thumbnail(src io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	// Check header dimensions before allocating the full bitmap.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > p.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	p.scaler.Scale(dst, dst.Bounds(), img, cropSquare(img.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// cropSquare returns the largest centered square inside r.
func cropSquare(r image.Rectangle) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	if w == h {
		return r
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(r.Min.X+off, r.Min.Y, r.Min.X+off+h, r.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(r.Min.X, r.Min.Y+off, r.Max.X, r.Min.Y+off+w)
}
