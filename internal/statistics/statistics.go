package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// maxErrors bounds the retained error log of a long-running server.
const maxErrors = 100

// Statistics accumulates counters across compression batches. It is safe for
// concurrent use.
type Statistics struct {
	BatchesStarted   int64
	BatchesCompleted int64

	ImagesReceived   int64
	ImagesCompressed int64
	TargetsMet       int64
	Fallbacks        int64
	FixedQuality     int64
	ImagesSkipped    int64
	ImagesWithErrors int64
	CodecFailures    int64
	NonMonotonic     int64

	Trials   int64
	BytesIn  int64
	BytesOut int64

	StartTime time.Time

	Errors      []StatError
	FormatStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred while compressing an image.
type StatError struct {
	Name      string    `json:"name"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	BatchesStarted   int64            `json:"batchesStarted"`
	BatchesCompleted int64            `json:"batchesCompleted"`
	ImagesReceived   int64            `json:"imagesReceived"`
	ImagesCompressed int64            `json:"imagesCompressed"`
	TargetsMet       int64            `json:"targetsMet"`
	Fallbacks        int64            `json:"fallbacks"`
	FixedQuality     int64            `json:"fixedQuality"`
	ImagesSkipped    int64            `json:"imagesSkipped"`
	ImagesWithErrors int64            `json:"imagesWithErrors"`
	CodecFailures    int64            `json:"codecFailures"`
	NonMonotonic     int64            `json:"nonMonotonic"`
	Trials           int64            `json:"trials"`
	AverageTrials    float64          `json:"averageTrials"`
	BytesIn          int64            `json:"bytesIn"`
	BytesOut         int64            `json:"bytesOut"`
	PercentageSaved  float64          `json:"percentageSaved"`
	Uptime           string           `json:"uptime"`
	Formats          map[string]int64 `json:"formats"`
	RecentErrors     []StatError      `json:"recentErrors"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// IncrementBatchesStarted increases the count of started batches by 1.
func (s *Statistics) IncrementBatchesStarted() {
	atomic.AddInt64(&s.BatchesStarted, 1)
}

// IncrementBatchesCompleted increases the count of completed batches by 1.
func (s *Statistics) IncrementBatchesCompleted() {
	atomic.AddInt64(&s.BatchesCompleted, 1)
}

// AddImagesReceived adds n to the count of received images.
func (s *Statistics) AddImagesReceived(n int) {
	atomic.AddInt64(&s.ImagesReceived, int64(n))
}

// RecordCompressed records a successful target-size encode of an image.
func (s *Statistics) RecordCompressed(format string, metTarget bool, trials int, in, out int64) {
	if metTarget {
		atomic.AddInt64(&s.TargetsMet, 1)
	} else {
		atomic.AddInt64(&s.Fallbacks, 1)
	}
	s.recordEncode(format, trials, in, out)
}

// RecordFixed records an encode at a fixed quality, with no size target.
func (s *Statistics) RecordFixed(format string, in, out int64) {
	atomic.AddInt64(&s.FixedQuality, 1)
	s.recordEncode(format, 1, in, out)
}

func (s *Statistics) recordEncode(format string, trials int, in, out int64) {
	atomic.AddInt64(&s.ImagesCompressed, 1)
	atomic.AddInt64(&s.Trials, int64(trials))
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)

	s.mutex.Lock()
	s.FormatStats[format]++
	s.mutex.Unlock()
}

// IncrementImagesSkipped increases the count of skipped images by 1.
func (s *Statistics) IncrementImagesSkipped() {
	atomic.AddInt64(&s.ImagesSkipped, 1)
}

// IncrementImagesWithErrors increases the count of failed images by 1.
func (s *Statistics) IncrementImagesWithErrors() {
	atomic.AddInt64(&s.ImagesWithErrors, 1)
}

// IncrementCodecFailures increases the count of codec failures by 1.
func (s *Statistics) IncrementCodecFailures() {
	atomic.AddInt64(&s.CodecFailures, 1)
}

// IncrementNonMonotonic increases the count of searches that observed a
// size inversion by 1.
func (s *Statistics) IncrementNonMonotonic() {
	atomic.AddInt64(&s.NonMonotonic, 1)
}

// AddError records an error. Only the most recent errors are kept.
func (s *Statistics) AddError(name, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		Name:      name,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
	if len(s.Errors) > maxErrors {
		s.Errors = s.Errors[len(s.Errors)-maxErrors:]
	}
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	snap := Snapshot{
		BatchesStarted:   atomic.LoadInt64(&s.BatchesStarted),
		BatchesCompleted: atomic.LoadInt64(&s.BatchesCompleted),
		ImagesReceived:   atomic.LoadInt64(&s.ImagesReceived),
		ImagesCompressed: atomic.LoadInt64(&s.ImagesCompressed),
		TargetsMet:       atomic.LoadInt64(&s.TargetsMet),
		Fallbacks:        atomic.LoadInt64(&s.Fallbacks),
		FixedQuality:     atomic.LoadInt64(&s.FixedQuality),
		ImagesSkipped:    atomic.LoadInt64(&s.ImagesSkipped),
		ImagesWithErrors: atomic.LoadInt64(&s.ImagesWithErrors),
		CodecFailures:    atomic.LoadInt64(&s.CodecFailures),
		NonMonotonic:     atomic.LoadInt64(&s.NonMonotonic),
		Trials:           atomic.LoadInt64(&s.Trials),
		BytesIn:          atomic.LoadInt64(&s.BytesIn),
		BytesOut:         atomic.LoadInt64(&s.BytesOut),
		Uptime:           time.Since(s.StartTime).Round(time.Second).String(),
	}
	if snap.ImagesCompressed > 0 {
		snap.AverageTrials = float64(snap.Trials) / float64(snap.ImagesCompressed)
	}
	if snap.BytesIn > 0 {
		snap.PercentageSaved = float64(snap.BytesIn-snap.BytesOut) * 100 / float64(snap.BytesIn)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	snap.Formats = make(map[string]int64, len(s.FormatStats))
	for k, v := range s.FormatStats {
		snap.Formats[k] = v
	}
	snap.RecentErrors = append([]StatError(nil), s.Errors...)
	return snap
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()
	return fmt.Sprintf(`Compression Statistics Summary:

Batches:
		Started: %d
		Completed: %d

Images:
		Received: %d
		Compressed: %d
		Target Met: %d
		Fallback: %d
		Fixed Quality: %d
		Skipped: %d
		Errors: %d
		Codec Failures: %d

Search:
		Trials: %d
		Average Trials: %.2f
		Non-monotonic: %d

Size:
		Bytes In: %s
		Bytes Out: %s
		Saved: %.1f%%

Uptime: %s`,
		snap.BatchesStarted,
		snap.BatchesCompleted,
		snap.ImagesReceived,
		snap.ImagesCompressed,
		snap.TargetsMet,
		snap.Fallbacks,
		snap.FixedQuality,
		snap.ImagesSkipped,
		snap.ImagesWithErrors,
		snap.CodecFailures,
		snap.Trials,
		snap.AverageTrials,
		snap.NonMonotonic,
		formatBytes(snap.BytesIn),
		formatBytes(snap.BytesOut),
		snap.PercentageSaved,
		snap.Uptime)
}

// GetFormatBreakdown returns a formatted breakdown of output formats.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	result := "Format Breakdown:\n"
	for _, f := range formats {
		result += fmt.Sprintf("  %s: %d\n", f, s.FormatStats[f])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.Name,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
