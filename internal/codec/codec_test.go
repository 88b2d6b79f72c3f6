package codec

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"imgpress-go/internal/targetsize"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 7) % 256), G: uint8((y * 5) % 256),
				B: uint8((x*y + 31) % 256), A: 255,
			})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProvider_DecodeFitsWithoutUpscaling(t *testing.T) {
	p := New()
	src := pngBytes(t, gradient(400, 200))

	img, err := p.Decode(src, targetsize.Resize{MaxWidth: 100})
	require.NoError(t, err)
	require.Equal(t, 100, img.Bounds().Dx())
	require.Equal(t, 50, img.Bounds().Dy())

	img, err = p.Decode(src, targetsize.Resize{MaxWidth: 1000, MaxHeight: 1000})
	require.NoError(t, err)
	require.Equal(t, 400, img.Bounds().Dx())
	require.Equal(t, 200, img.Bounds().Dy())

	img, err = p.Decode(src, targetsize.Resize{MaxHeight: 40})
	require.NoError(t, err)
	require.Equal(t, 80, img.Bounds().Dx())
	require.Equal(t, 40, img.Bounds().Dy())
}

func TestProvider_DecodeRejectsBadInput(t *testing.T) {
	p := New()

	_, err := p.Decode(nil, targetsize.Resize{})
	require.ErrorIs(t, err, ErrEmptySource)

	_, err = p.Decode([]byte("definitely not an image"), targetsize.Resize{})
	require.Error(t, err)
}

func TestProvider_EncodeFormats(t *testing.T) {
	p := New()
	img := gradient(64, 48)

	for _, tt := range []struct {
		format targetsize.Format
		magic  []byte
	}{
		{targetsize.FormatJPEG, []byte{0xFF, 0xD8}},
		{targetsize.FormatPNG, []byte{0x89, 'P', 'N', 'G'}},
		{targetsize.FormatWebP, []byte("RIFF")},
	} {
		t.Run(string(tt.format), func(t *testing.T) {
			data, err := p.Encode(img, 75, tt.format)
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(data, tt.magic))

			info, err := Inspect(data)
			require.NoError(t, err)
			require.Equal(t, string(tt.format), info.Format)
			require.Equal(t, 64, info.Width)
		})
	}
}

func TestProvider_EncodeUnsupported(t *testing.T) {
	_, err := New().Encode(gradient(8, 8), 80, "gif")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProvider_JPEGSizeGrowsWithQuality(t *testing.T) {
	p := New()
	img := gradient(256, 256)

	low, err := p.Encode(img, 15, targetsize.FormatJPEG)
	require.NoError(t, err)
	high, err := p.Encode(img, 95, targetsize.FormatJPEG)
	require.NoError(t, err)

	require.Less(t, len(low), len(high))
}

func TestProvider_Deterministic(t *testing.T) {
	p := New()
	img := gradient(120, 90)

	a, err := p.Encode(img, 60, targetsize.FormatJPEG)
	require.NoError(t, err)
	b, err := p.Encode(img, 60, targetsize.FormatJPEG)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestPNGLevel(t *testing.T) {
	require.Equal(t, png.NoCompression, pngLevel(100))
	require.Equal(t, png.BestSpeed, pngLevel(80))
	require.Equal(t, png.DefaultCompression, pngLevel(50))
	require.Equal(t, png.BestCompression, pngLevel(10))
	require.Equal(t, png.BestCompression, pngLevel(-4))
}

func TestInspect(t *testing.T) {
	info, err := Inspect(pngBytes(t, gradient(30, 10)))
	require.NoError(t, err)
	require.Equal(t, Info{Format: "png", Width: 30, Height: 10}, info)
	require.True(t, info.Landscape())

	_, err = Inspect(nil)
	require.ErrorIs(t, err, ErrEmptySource)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []targetsize.Format{targetsize.FormatJPEG, targetsize.FormatWebP, targetsize.FormatPNG}, r.Available())
	require.NotNil(t, r.Get("JPEG"))
	require.Nil(t, r.Get("avif"))
	require.Equal(t, "encoders: jpeg, webp, png", r.String())
}

func TestEncodeToTarget_WithProvider(t *testing.T) {
	p := New()
	src := pngBytes(t, gradient(320, 240))

	top, err := p.Encode(gradient(320, 240), 90, targetsize.FormatJPEG)
	require.NoError(t, err)
	budget := float64(len(top)) / 1024 / 2

	res, err := targetsize.EncodeToTarget(context.Background(), targetsize.EncodeRequest{
		Source:       src,
		TargetKB:     budget,
		StartQuality: 90,
		MinQuality:   5,
	}, p)
	require.NoError(t, err)
	require.True(t, res.MetTarget)
	require.Less(t, res.QualityUsed, 90)
	require.LessOrEqual(t, res.SizeKB, budget)
	require.LessOrEqual(t, res.Trials, 8)

	_, err = targetsize.EncodeToTarget(context.Background(), targetsize.EncodeRequest{
		Source:       []byte{0x01, 0x02},
		TargetKB:     budget,
		StartQuality: 90,
		MinQuality:   5,
	}, p)
	var failure *targetsize.CodecFailure
	require.ErrorAs(t, err, &failure)
}
