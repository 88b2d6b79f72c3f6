package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads EXIF metadata, caching results by path, size and
// modification time.
type EXIFExtractor struct {
	logger logrus.FieldLogger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

type cacheEntry struct {
	meta *Metadata
	err  error
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger logrus.FieldLogger) *EXIFExtractor {
	return &EXIFExtractor{
		logger: logger,
		cache:  &sync.Map{},
	}
}

// SupportsFile reports whether the file can carry EXIF.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains([]string{".jpg", ".jpeg", ".tif", ".tiff"}, ext)
}

// Extract returns the EXIF metadata of filePath.
func (e *EXIFExtractor) Extract(filePath string) (*Metadata, error) {
	if !e.SupportsFile(filePath) {
		return nil, fmt.Errorf("file type not supported by extractor: %s", filePath)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	key := e.getCacheKey(filePath, fileInfo)
	if value, ok := e.cache.Load(key); ok {
		e.incrementCacheHits()
		entry := value.(cacheEntry)
		return entry.meta, entry.err
	}
	e.incrementCacheMisses()

	meta, err := e.extractWithGoExif(filePath)
	e.cache.Store(key, cacheEntry{meta: meta, err: err})
	return meta, err
}

// HasMarker reports whether the EXIF Software tag of filePath contains marker.
func (e *EXIFExtractor) HasMarker(filePath, marker string) bool {
	meta, err := e.Extract(filePath)
	if err != nil {
		return false
	}
	return strings.Contains(meta.Software, marker)
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (e *EXIFExtractor) ClearCache() {
	e.cache = &sync.Map{}
	e.mutex.Lock()
	e.stats = CacheStats{}
	e.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this extractor.
func (e *EXIFExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

func (e *EXIFExtractor) extractWithGoExif(filePath string) (*Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	meta := &Metadata{
		Software: stringTag(x, exif.Software),
		Make:     stringTag(x, exif.Make),
		Model:    stringTag(x, exif.Model),
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = v
		}
	}

	if tm, err := x.DateTime(); err == nil {
		meta.TakenAt = &tm
	} else if date := e.parseEXIFDateTime(stringTag(x, exif.DateTimeDigitized)); date != nil {
		meta.TakenAt = date
	}

	e.logger.Debugf("Extracted EXIF from %s: software=%q orientation=%d", filePath, meta.Software, meta.Orientation)
	return meta, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func (e *EXIFExtractor) parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		time.RFC3339,
	}
	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}

	e.logger.Debugf("Failed to parse date string: %s", dateStr)
	return nil
}

func (e *EXIFExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (e *EXIFExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

func (e *EXIFExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}
