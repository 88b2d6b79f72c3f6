package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"imgpress-go/internal/logger"
)

func TestSupportsFile(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	require.True(t, e.SupportsFile("a/B.JPEG"))
	require.True(t, e.SupportsFile("scan.tif"))
	require.False(t, e.SupportsFile("a.png"))
}

func TestExtract_NoEXIF(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	path := filepath.Join(t.TempDir(), "plain.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0644))

	_, err := e.Extract(path)
	require.Error(t, err)
	require.False(t, e.HasMarker(path, "imgpress"))

	stats := e.GetCacheStats()
	require.EqualValues(t, 1, stats.Misses)
	require.EqualValues(t, 1, stats.Hits)
	require.InDelta(t, 0.5, stats.HitRate, 1e-9)

	e.ClearCache()
	require.Zero(t, e.GetCacheStats().TotalQueries)
}

func TestExtract_Errors(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())

	_, err := e.Extract("photo.png")
	require.Error(t, err)

	_, err = e.Extract(filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	require.False(t, e.HasMarker(filepath.Join(t.TempDir(), "missing.jpg"), "imgpress"))
}

func TestParseEXIFDateTime(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())

	d := e.parseEXIFDateTime("2023:07:14 10:30:00")
	require.NotNil(t, d)
	require.Equal(t, 2023, d.Year())
	require.Equal(t, 10, d.Hour())

	require.Nil(t, e.parseEXIFDateTime(""))
	require.Nil(t, e.parseEXIFDateTime("yesterday"))
}
