// Package codec decodes uploaded images and re-encodes them at a quality
// level. Provider satisfies targetsize.Codec.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imgpress-go/internal/targetsize"
)

var (
	// ErrEmptySource is returned for zero-length input.
	ErrEmptySource = errors.New("empty source")
	// ErrUnsupportedFormat is returned when no encoder handles the requested format.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Info describes a source image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
}

// Landscape reports whether the image is wider than tall.
func (i Info) Landscape() bool {
	return i.Width > i.Height
}

// Provider is a stateless codec. A single Provider is safe for concurrent use.
type Provider struct {
	registry *Registry
}

// New returns a Provider backed by the default registry.
func New() *Provider {
	return NewWithRegistry(NewRegistry())
}

// NewWithRegistry returns a Provider using r.
func NewWithRegistry(r *Registry) *Provider {
	return &Provider{registry: r}
}

// Registry returns the encoder registry.
func (p *Provider) Registry() *Registry {
	return p.registry
}

// Decode parses src, applies EXIF orientation and fits the result inside
// resize without upscaling.
func (p *Provider) Decode(src []byte, resize targetsize.Resize) (image.Image, error) {
	if len(src) == 0 {
		return nil, ErrEmptySource
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return Fit(img, resize), nil
}

// Encode encodes img at quality in format.
func (p *Provider) Encode(img image.Image, quality int, format targetsize.Format) ([]byte, error) {
	enc := p.registry.Get(format)
	if enc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	data, err := enc.Encode(img, quality)
	if err != nil {
		return nil, fmt.Errorf("%s encoder: %w", format, err)
	}
	return data, nil
}

// Inspect reads the format and dimensions of src.
func Inspect(src []byte) (Info, error) {
	if len(src) == 0 {
		return Info{}, ErrEmptySource
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return Info{}, fmt.Errorf("decode config: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Fit scales img down to fit inside the bounds, preserving aspect ratio.
// Images already inside the bounds are returned unchanged.
func Fit(img image.Image, resize targetsize.Resize) image.Image {
	if resize.IsZero() {
		return img
	}

	b := img.Bounds()
	maxW, maxH := resize.MaxWidth, resize.MaxHeight
	if maxW <= 0 {
		maxW = b.Dx()
	}
	if maxH <= 0 {
		maxH = b.Dy()
	}
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return img
	}
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos)
}
