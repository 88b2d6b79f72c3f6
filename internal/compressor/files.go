package compressor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imgpress-go/internal/logger"
	"imgpress-go/internal/targetsize"
)

// Marker is written to the EXIF Software tag of JPEG outputs. Inputs that
// already carry it are skipped.
const Marker = "imgpress"

// preservedTags are copied from the source onto stamped outputs.
var preservedTags = []string{
	"Make", "Model", "DateTimeOriginal", "CreateDate", "Artist", "Copyright",
}

// CompressFiles compresses every matching file under params.InputPaths into
// params.TargetDir. Outputs are written atomically via a temporary file.
func (c *DefaultCompressor) CompressFiles(ctx context.Context, params FileParams) ([]Result, error) {
	if err := params.Params.Validate(); err != nil {
		return nil, err
	}
	if params.TargetDir == "" {
		return nil, fmt.Errorf("%w: target directory is required", targetsize.ErrInvalidParameters)
	}
	if params.Threshold <= 0 {
		params.Threshold = 1.01
	}

	files, err := collectImageFiles(params.InputPaths, params.Formats)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(params.TargetDir, 0755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}

	log := logger.WithBatch(c.log, uuid.NewString(), "compress_files")
	log.WithFields(logrus.Fields{
		"files":  len(files),
		"target": params.TargetDir,
	}).Info("File compression started")
	c.stats.IncrementBatchesStarted()
	c.stats.AddImagesReceived(len(files))

	st := &stamper{marker: c.marker, log: log}
	defer st.Close()

	results := c.run(len(files), params.Params.Progress, func(i int) Result {
		return c.compressFile(ctx, log, i, files[i], params, st)
	})
	c.stats.IncrementBatchesCompleted()
	return results, nil
}

// collectImageFiles recursively collects all files with supported extensions.
func collectImageFiles(inputPaths []string, formats []string) ([]string, error) {
	var files []string
	extSet := make(map[string]struct{})
	for _, f := range formats {
		extSet[strings.ToLower(f)] = struct{}{}
	}
	accept := func(name string) bool {
		_, ok := extSet[strings.ToLower(filepath.Ext(name))]
		return ok
	}

	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if accept(info.Name()) {
				files = append(files, in)
			}
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if accept(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isJPEG(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jpg" || ext == ".jpeg"
}

func (c *DefaultCompressor) compressFile(ctx context.Context, batchLog logrus.FieldLogger, i int, path string, params FileParams, st *stamper) Result {
	base := filepath.Base(path)
	res := Result{
		Index:     i,
		Name:      base,
		InputPath: path,
		Format:    params.Params.Format,
		StartedAt: time.Now(),
	}
	log := logger.WithImage(batchLog, i, path)

	if isJPEG(path) && c.meta.HasMarker(path, c.marker) {
		res.Action = ActionSkipped
		res.Message = "Already compressed by imgpress"
		res.Success = true
		res.FinishedAt = time.Now()
		c.stats.IncrementImagesSkipped()
		return res
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c.fail(log, res, fmt.Errorf("read: %w", err))
	}

	res = c.compressItem(ctx, batchLog, i, Item{Name: base, Data: data}, params.Params)
	res.InputPath = path
	if !res.Success {
		return res
	}
	encoded := res.Data
	res.Data = nil

	if float64(res.CompressedSize) >= float64(res.OriginalSize)*params.Threshold {
		keep := filepath.Join(params.TargetDir, base)
		if err := copyFile(path, keep); err != nil {
			return c.fail(log, res, fmt.Errorf("copy original: %w", err))
		}
		res.OutputPath = keep
		res.Action = ActionOriginal
		res.Message = "Compressed file not smaller than original, saved original"
		res.PercentageSaved = 0
		return res
	}

	outPath := filepath.Join(params.TargetDir,
		strings.TrimSuffix(base, filepath.Ext(base))+"."+res.Format.Extension())
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0644); err != nil {
		return c.fail(log, res, fmt.Errorf("write tmp file: %w", err))
	}
	if res.Format == targetsize.FormatJPEG {
		if err := st.stamp(path, tmpPath); err != nil {
			res.Message += fmt.Sprintf("; warning: exif not marked: %v", err)
		}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return c.fail(log, res, fmt.Errorf("rename: %w", err))
	}
	res.OutputPath = outPath
	return res
}

// copyFile copies file src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// stamper writes the marker with a single shared exiftool process, started
// on first use.
type stamper struct {
	marker string
	log    logrus.FieldLogger

	once sync.Once
	mu   sync.Mutex
	et   *exiftool.Exiftool
	err  error
}

func (s *stamper) stamp(src, dst string) error {
	s.once.Do(func() {
		s.et, s.err = exiftool.NewExiftool()
		if s.err != nil {
			s.log.WithError(s.err).Warn("exiftool unavailable, outputs will not be marked")
		}
	})
	if s.err != nil {
		return s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := exiftool.FileMetadata{File: dst, Fields: map[string]interface{}{}}
	if srcMeta := s.et.ExtractMetadata(src); len(srcMeta) == 1 && srcMeta[0].Err == nil {
		for _, tag := range preservedTags {
			if v, err := srcMeta[0].GetString(tag); err == nil && v != "" {
				out.SetString(tag, v)
			}
		}
	}
	out.SetString("Software", s.marker)

	fms := []exiftool.FileMetadata{out}
	s.et.WriteMetadata(fms)
	_ = os.Remove(dst + "_original")
	return fms[0].Err
}

func (s *stamper) Close() {
	if s.et != nil {
		_ = s.et.Close()
	}
}
