package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"imgpress-go/internal/codec"
	"imgpress-go/internal/statistics"
	"imgpress-go/internal/targetsize"
)

// widthCodec decodes a source of n bytes to an n-pixel-wide image and
// encodes it to quality*width bytes, so a 1024-byte item weighs quality KB.
type widthCodec struct {
	calls atomic.Int64
}

func (c *widthCodec) Decode(src []byte, _ targetsize.Resize) (image.Image, error) {
	c.calls.Add(1)
	if bytes.Equal(src, []byte("corrupt")) {
		return nil, errors.New("not an image")
	}
	return image.NewGray(image.Rect(0, 0, len(src), 1)), nil
}

func (c *widthCodec) Encode(img image.Image, quality int, _ targetsize.Format) ([]byte, error) {
	c.calls.Add(1)
	return bytes.Repeat([]byte{byte(quality)}, quality*img.Bounds().Dx()), nil
}

func item(name string, n int) Item {
	return Item{Name: name, Data: make([]byte, n)}
}

func TestCompress_BatchIsolation(t *testing.T) {
	stats := statistics.NewStatistics()
	c := NewDefaultCompressor(&widthCodec{}, WithWorkers(3), WithStatistics(stats))

	batch, err := c.Compress(context.Background(), []Item{
		item("a.png", 1024),
		{Name: "bad.png", Data: []byte("corrupt")},
		item("c.png", 2048),
	}, Params{TargetKB: 50})
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)
	require.Equal(t, 3, batch.TotalCount)
	require.Equal(t, 2, batch.SuccessCount)

	r := batch.Results
	require.Equal(t, "a.png", r[0].Name)
	require.Equal(t, 50, r[0].QualityUsed)
	require.True(t, r[0].MetTarget)
	require.Equal(t, ActionCompressed, r[0].Action)
	require.Len(t, r[0].Hash, 16)

	require.Equal(t, "bad.png", r[1].Name)
	require.False(t, r[1].Success)
	require.Equal(t, ActionError, r[1].Action)
	var failure *targetsize.CodecFailure
	require.ErrorAs(t, r[1].Error, &failure)

	require.Equal(t, 2, r[2].Index)
	require.Equal(t, 25, r[2].QualityUsed)
	require.LessOrEqual(t, r[2].SizeKB, 50.0)

	require.Len(t, batch.Succeeded(), 2)

	snap := stats.Snapshot()
	require.EqualValues(t, 3, snap.ImagesReceived)
	require.EqualValues(t, 2, snap.ImagesCompressed)
	require.EqualValues(t, 1, snap.CodecFailures)
	require.EqualValues(t, 1, snap.BatchesCompleted)
}

func TestCompress_FixedQuality(t *testing.T) {
	wc := &widthCodec{}
	stats := statistics.NewStatistics()
	c := NewDefaultCompressor(wc, WithStatistics(stats))

	batch, err := c.Compress(context.Background(), []Item{item("a", 1024)}, Params{Quality: 70})
	require.NoError(t, err)

	r := batch.Results[0]
	require.Equal(t, 70, r.QualityUsed)
	require.Equal(t, 1, r.Trials)
	require.True(t, r.MetTarget)
	require.EqualValues(t, 70*1024, r.CompressedSize)
	require.Equal(t, targetsize.FormatJPEG, r.Format)
	require.EqualValues(t, 2, wc.calls.Load())

	snap := stats.Snapshot()
	require.EqualValues(t, 1, snap.ImagesCompressed)
	require.EqualValues(t, 1, snap.FixedQuality)
	require.Zero(t, snap.TargetsMet)
	require.Zero(t, snap.Fallbacks)
}

func TestCompress_Fallback(t *testing.T) {
	c := NewDefaultCompressor(&widthCodec{})

	batch, err := c.Compress(context.Background(), []Item{item("a", 1024)},
		Params{TargetKB: 5, StartQuality: 80, MinQuality: 10})
	require.NoError(t, err)
	require.Equal(t, 1, batch.SuccessCount)

	r := batch.Results[0]
	require.True(t, r.Success)
	require.False(t, r.MetTarget)
	require.Equal(t, ActionFallback, r.Action)
	require.Equal(t, 10, r.QualityUsed)
	require.InDelta(t, 10.0, r.SizeKB, 1e-9)
}

func TestCompress_InvalidParams(t *testing.T) {
	wc := &widthCodec{}
	c := NewDefaultCompressor(wc)
	items := []Item{item("a", 1024)}

	for name, p := range map[string]Params{
		"negative target":  {TargetKB: -1},
		"no quality":       {},
		"quality too high": {Quality: 101},
		"bad format":       {Quality: 80, Format: "gif"},
		"min above start":  {TargetKB: 10, StartQuality: 40, MinQuality: 50},
		"unknown strategy": {TargetKB: 10, Strategy: "random"},
		"negative resize":  {Quality: 80, Resize: targetsize.Resize{MaxWidth: -1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compress(context.Background(), items, p)
			require.ErrorIs(t, err, targetsize.ErrInvalidParameters)
		})
	}

	_, err := c.Compress(context.Background(), nil, Params{Quality: 80})
	require.ErrorIs(t, err, targetsize.ErrInvalidParameters)
	require.Zero(t, wc.calls.Load())
}

func TestCompress_CancelledContext(t *testing.T) {
	wc := &widthCodec{}
	c := NewDefaultCompressor(wc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compress(ctx, []Item{item("a", 1024)}, Params{TargetKB: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, wc.calls.Load())
}

func TestCompress_Progress(t *testing.T) {
	c := NewDefaultCompressor(&widthCodec{}, WithWorkers(2))

	var (
		mu   sync.Mutex
		seen []int
	)
	_, err := c.Compress(context.Background(), []Item{item("a", 10), item("b", 20), item("c", 30)}, Params{
		Quality: 50,
		Progress: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, r.Index)
		},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 1, 2}, seen)
}

func TestCompress_Deterministic(t *testing.T) {
	c := NewDefaultCompressor(&widthCodec{})
	items := []Item{item("a", 1024), item("b", 3000)}
	p := Params{TargetKB: 40}

	first, err := c.Compress(context.Background(), items, p)
	require.NoError(t, err)
	second, err := c.Compress(context.Background(), items, p)
	require.NoError(t, err)

	for i := range items {
		require.Equal(t, first.Results[i].QualityUsed, second.Results[i].QualityUsed)
		require.Equal(t, first.Results[i].Data, second.Results[i].Data)
	}
}

func noisyPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 13), G: uint8(y * 7), B: uint8(x * y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestCompressFiles(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	noisyPNG(t, filepath.Join(src, "photo.png"), 200, 150)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	noisyPNG(t, filepath.Join(src, "nested", "tiny.PNG"), 2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip me"), 0644))

	c := NewDefaultCompressor(codec.New(), WithWorkers(2))
	results, err := c.CompressFiles(context.Background(), FileParams{
		InputPaths: []string{src},
		TargetDir:  out,
		Formats:    []string{".png"},
		Params:     Params{Quality: 60},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]Result{}
	for _, r := range results {
		require.True(t, r.Success, r.Message)
		require.Nil(t, r.Data)
		byName[r.Name] = r
	}

	photo := byName["photo.png"]
	require.Equal(t, ActionCompressed, photo.Action)
	require.Equal(t, filepath.Join(out, "photo.jpg"), photo.OutputPath)
	require.FileExists(t, photo.OutputPath)
	require.NoFileExists(t, photo.OutputPath+".tmp")

	// A 2x2 PNG is smaller than any JPEG, so the original is kept.
	tiny := byName["tiny.PNG"]
	require.Equal(t, ActionOriginal, tiny.Action)
	require.Equal(t, filepath.Join(out, "tiny.PNG"), tiny.OutputPath)
	require.FileExists(t, tiny.OutputPath)
}

func TestCompressFiles_Errors(t *testing.T) {
	c := NewDefaultCompressor(&widthCodec{})

	_, err := c.CompressFiles(context.Background(), FileParams{
		InputPaths: []string{t.TempDir()},
		Params:     Params{Quality: 60},
	})
	require.ErrorIs(t, err, targetsize.ErrInvalidParameters)

	_, err = c.CompressFiles(context.Background(), FileParams{
		InputPaths: []string{filepath.Join(t.TempDir(), "missing")},
		TargetDir:  t.TempDir(),
		Params:     Params{Quality: 60},
	})
	require.Error(t, err)

	results, err := c.CompressFiles(context.Background(), FileParams{
		InputPaths: []string{t.TempDir()},
		TargetDir:  t.TempDir(),
		Formats:    []string{".png"},
		Params:     Params{Quality: 60},
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestIsJPEG(t *testing.T) {
	require.True(t, isJPEG("a/B.JPEG"))
	require.False(t, isJPEG("a/b.png"))
}
