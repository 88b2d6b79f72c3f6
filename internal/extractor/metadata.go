package extractor

import "time"

// Metadata is the subset of EXIF read from source images.
type Metadata struct {
	Software    string
	Make        string
	Model       string
	Orientation int
	TakenAt     *time.Time
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	TotalQueries int64
}
