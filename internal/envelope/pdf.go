package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"imgpress-go/internal/codec"
	"imgpress-go/internal/targetsize"
)

// Page layouts.
const (
	LayoutPortrait  = "portrait"
	LayoutLandscape = "landscape"
)

// Defaults applied by PageOptions.normalize.
const (
	DefaultPageSize = "A4"
	DefaultMargin   = 20.0
)

// ErrInvalidPage is returned for page options that cannot be laid out.
var ErrInvalidPage = errors.New("invalid page options")

func init() {
	api.DisableConfigDir()
}

// PageOptions controls the PDF page geometry. Margin is in points.
type PageOptions struct {
	PageSize        string
	Layout          string
	Margin          float64
	AutoOrientation bool
}

// DefaultPageOptions returns A4 portrait pages with a 20pt margin and
// auto orientation.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		PageSize:        DefaultPageSize,
		Layout:          LayoutPortrait,
		Margin:          DefaultMargin,
		AutoOrientation: true,
	}
}

func (o PageOptions) normalize() (PageOptions, *types.Dim, error) {
	if o.PageSize == "" {
		o.PageSize = DefaultPageSize
	}
	o.Layout = strings.ToLower(o.Layout)
	if o.Layout == "" {
		o.Layout = LayoutPortrait
	}
	if o.Layout != LayoutPortrait && o.Layout != LayoutLandscape {
		return o, nil, fmt.Errorf("%w: layout %q", ErrInvalidPage, o.Layout)
	}
	if o.Margin < 0 {
		return o, nil, fmt.Errorf("%w: negative margin", ErrInvalidPage)
	}

	name, dim, ok := lookupPaper(o.PageSize)
	if !ok {
		return o, nil, fmt.Errorf("%w: page size %q", ErrInvalidPage, o.PageSize)
	}
	o.PageSize = name
	if 2*o.Margin >= dim.Width || 2*o.Margin >= dim.Height {
		return o, nil, fmt.Errorf("%w: margin %.0f too large for %s", ErrInvalidPage, o.Margin, o.PageSize)
	}
	return o, dim, nil
}

// lookupPaper resolves name case-insensitively to its canonical key.
func lookupPaper(name string) (string, *types.Dim, bool) {
	if d, ok := types.PaperSize[name]; ok {
		return name, d, true
	}
	for k, d := range types.PaperSize {
		if strings.EqualFold(k, name) {
			return k, d, true
		}
	}
	return "", nil, false
}

// scale expresses the margin as the relative image scale on the page.
func (o PageOptions) scale(dim *types.Dim) float64 {
	sw := (dim.Width - 2*o.Margin) / dim.Width
	sh := (dim.Height - 2*o.Margin) / dim.Height
	return min(sw, sh)
}

func (o PageOptions) descriptor(dim *types.Dim, landscape bool) string {
	suffix := "P"
	if landscape {
		suffix = "L"
	}
	return fmt.Sprintf("formsize:%s%s, position:c, scalefactor:%.4f rel", o.PageSize, suffix, o.scale(dim))
}

// PDF lays out one image per page. With AutoOrientation each page is
// landscape when its image is wider than tall; otherwise Layout applies to
// every page.
func PDF(entries []Entry, opts PageOptions) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrInvalidPage)
	}
	opts, dim, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	var doc []byte
	for i, e := range entries {
		data, landscape, err := pageImage(e)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		if !opts.AutoOrientation {
			landscape = opts.Layout == LayoutLandscape
		}

		imp, err := api.Import(opts.descriptor(dim, landscape), types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("import options: %w", err)
		}

		var rs io.ReadSeeker
		if doc != nil {
			rs = bytes.NewReader(doc)
		}
		var out bytes.Buffer
		if err := api.ImportImages(rs, &out, []io.Reader{bytes.NewReader(data)}, imp, nil); err != nil {
			return nil, fmt.Errorf("image %d: import: %w", i+1, err)
		}
		doc = out.Bytes()
	}
	return doc, nil
}

// pageImage returns data in a format the PDF writer embeds directly and
// whether the image is wider than tall.
func pageImage(e Entry) ([]byte, bool, error) {
	info, err := codec.Inspect(e.Data)
	if err != nil {
		return nil, false, err
	}
	landscape := info.Landscape()
	if info.Format == "jpeg" || info.Format == "png" {
		return e.Data, landscape, nil
	}

	img, err := imaging.Decode(bytes.NewReader(e.Data))
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", info.Format, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, false, fmt.Errorf("re-encode %s as %s: %w", info.Format, targetsize.FormatJPEG, err)
	}
	return buf.Bytes(), landscape, nil
}
