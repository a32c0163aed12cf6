// Package imaging checks uploaded photos. Photos are stored exactly as
// uploaded; nothing is decoded beyond the header.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	_ "golang.org/x/image/webp"
)

// MaxDimension is the maximum accepted width or height in pixels.
const MaxDimension = 8000

// DefaultMaxBytes is the upload size limit used when none is configured.
const DefaultMaxBytes = 10 << 20

// Errors returned by Inspect.
var (
	ErrEmpty       = errors.New("photo is empty")
	ErrTooLarge    = errors.New("photo is too large")
	ErrUnsupported = errors.New("unsupported photo format")
	ErrDimensions  = errors.New("photo dimensions out of range")
)

// extensions maps the accepted sniffed MIME types to object key suffixes.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Photo is an accepted upload.
type Photo struct {
	Data   []byte
	MIME   string
	Ext    string
	Width  int
	Height int
}

// Inspect reads at most maxBytes from r, detects the format from the bytes
// (never from client headers) and checks the dimensions. A maxBytes of zero
// or less uses DefaultMaxBytes.
func Inspect(r io.Reader, maxBytes int64) (*Photo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	detected := http.DetectContentType(data)
	ext, ok := extensions[detected]
	if !ok {
		return nil, fmt.Errorf("%w: %s (only JPEG, PNG and WebP accepted)", ErrUnsupported, detected)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d, max %d per side", ErrDimensions, cfg.Width, cfg.Height, MaxDimension)
	}

	return &Photo{
		Data:   data,
		MIME:   detected,
		Ext:    ext,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
