package codec

import (
	"bytes"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"imgpress-go/internal/targetsize"
)

// Encoder encodes an image to one format.
type Encoder interface {
	// Format returns the output format.
	Format() targetsize.Format

	// Encode converts the image to bytes at the given quality (1-100).
	Encode(img image.Image, quality int) ([]byte, error)
}

// JPEGEncoder encodes baseline JPEG through imaging.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() targetsize.Format { return targetsize.FormatJPEG }

func (e *JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PNGEncoder encodes lossless PNG. Quality only selects the deflate effort.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() targetsize.Format { return targetsize.FormatPNG }

func (e *PNGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024)

	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngLevel maps quality onto a zlib level 0-9 (100 → 0, 1 → 9) and then onto
// the four levels image/png exposes.
func pngLevel(quality int) png.CompressionLevel {
	level := (9*(100-clampQuality(quality)) + 50) / 100
	switch {
	case level == 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// WebPEncoder encodes lossy WebP through libwebp.
type WebPEncoder struct{}

func (e *WebPEncoder) Format() targetsize.Format { return targetsize.FormatWebP }

func (e *WebPEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(128 * 1024)

	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(clampQuality(quality))}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
