package targetsize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":      FormatJPEG,
		"jpg":   FormatJPEG,
		"JPEG":  FormatJPEG,
		" png ": FormatPNG,
		"webp":  FormatWebP,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseFormat("bmp")
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestFormat_Extension(t *testing.T) {
	require.Equal(t, "jpg", FormatJPEG.Extension())
	require.Equal(t, "png", FormatPNG.Extension())
	require.Equal(t, "image/webp", FormatWebP.ContentType())
}

func TestEncodeRequest_ValidateFillsDefaults(t *testing.T) {
	req := EncodeRequest{TargetKB: 1, StartQuality: 80, MinQuality: 10}

	require.NoError(t, req.Validate())
	require.Equal(t, FormatJPEG, req.Format)
	require.Equal(t, StrategyBinary, req.Strategy)
	require.Equal(t, DefaultStep, req.Step)
}

func TestCodecFailure_Error(t *testing.T) {
	err := &CodecFailure{Quality: 40, Reason: "encode jpeg", Err: errTest("boom")}
	require.Equal(t, "codec failure at quality 40: encode jpeg: boom", err.Error())

	err = &CodecFailure{Reason: "decode source", Err: errTest("bad header")}
	require.Equal(t, "codec failure: decode source: bad header", err.Error())
}

type errTest string

func (e errTest) Error() string { return string(e) }
