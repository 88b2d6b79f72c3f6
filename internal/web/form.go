package web

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"imgpress-go/internal/compressor"
	"imgpress-go/internal/envelope"
	"imgpress-go/internal/targetsize"
)

// imagesField is the multipart field carrying uploads.
const imagesField = "images"

// Upload errors mapped to 4xx responses.
var (
	errNoImages     = errors.New("no images uploaded")
	errTooManyFiles = errors.New("too many files")
	errFileTooLarge = errors.New("file too large")
)

// parseUpload reads the multipart form and returns the uploaded images in
// form order.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) ([]compressor.Item, error) {
	maxFiles := s.cfg.Server.MaxFiles
	maxSize := s.cfg.Server.MaxFileSize

	r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*maxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errFileTooLarge
		}
		return nil, fmt.Errorf("%w: %v", targetsize.ErrInvalidParameters, err)
	}

	headers := r.MultipartForm.File[imagesField]
	if len(headers) == 0 {
		return nil, errNoImages
	}
	if len(headers) > maxFiles {
		return nil, fmt.Errorf("%w: %d uploaded, at most %d allowed", errTooManyFiles, len(headers), maxFiles)
	}

	items := make([]compressor.Item, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxSize {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, fh.Filename, maxSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		items = append(items, compressor.Item{Name: fh.Filename, Data: data})
	}
	return items, nil
}

// compressParams reads the compression fields. Unset fields take the
// configured defaults. With targetKB set, quality seeds the search and
// lowers the configured minQuality when it starts below it.
func (s *Server) compressParams(r *http.Request) (compressor.Params, error) {
	defaults := s.cfg.Compression
	p := compressor.Params{
		Quality:      defaults.DefaultQuality,
		StartQuality: defaults.StartQuality,
		MinQuality:   defaults.MinQuality,
		Step:         defaults.Step,
		Strategy:     targetsize.Strategy(defaults.Strategy),
		Format:       targetsize.Format(defaults.Format),
	}

	var err error
	if p.TargetKB, err = formFloat(r, "targetKB", 0); err != nil {
		return p, err
	}
	quality := r.FormValue("quality")
	if p.Quality, err = formInt(r, "quality", p.Quality); err != nil {
		return p, err
	}
	if quality != "" {
		p.StartQuality = p.Quality
	}
	if p.StartQuality, err = formInt(r, "startQuality", p.StartQuality); err != nil {
		return p, err
	}
	if p.MinQuality, err = formInt(r, "minQuality", p.MinQuality); err != nil {
		return p, err
	}
	if r.FormValue("minQuality") == "" && p.MinQuality > p.StartQuality {
		p.MinQuality = p.StartQuality
	}
	if p.Step, err = formInt(r, "step", p.Step); err != nil {
		return p, err
	}
	if p.Resize.MaxWidth, err = formInt(r, "maxWidth", 0); err != nil {
		return p, err
	}
	if p.Resize.MaxHeight, err = formInt(r, "maxHeight", 0); err != nil {
		return p, err
	}
	if v := r.FormValue("format"); v != "" {
		if p.Format, err = targetsize.ParseFormat(v); err != nil {
			return p, err
		}
	}
	if v := r.FormValue("strategy"); v != "" {
		p.Strategy = targetsize.Strategy(strings.ToLower(v))
	}

	return p, p.Validate()
}

// pageOptions reads the PDF layout fields.
func pageOptions(r *http.Request) (envelope.PageOptions, error) {
	opts := envelope.DefaultPageOptions()
	if v := r.FormValue("pageSize"); v != "" {
		opts.PageSize = v
	}
	if v := r.FormValue("layout"); v != "" {
		opts.Layout = v
	}

	var err error
	if opts.Margin, err = formFloat(r, "margin", opts.Margin); err != nil {
		return opts, err
	}
	if v := r.FormValue("autoOrientation"); v != "" {
		if opts.AutoOrientation, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("%w: autoOrientation must be a boolean", targetsize.ErrInvalidParameters)
		}
	}
	return opts, nil
}

func formInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", targetsize.ErrInvalidParameters, key, v)
	}
	return n, nil
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", targetsize.ErrInvalidParameters, key, v)
	}
	return f, nil
}
