package statistics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordCompressed(t *testing.T) {
	s := NewStatistics()
	s.AddImagesReceived(3)
	s.RecordCompressed("jpeg", true, 4, 4096, 1024)
	s.RecordCompressed("jpeg", false, 8, 4096, 3072)
	s.IncrementImagesWithErrors()
	s.IncrementCodecFailures()

	snap := s.Snapshot()
	require.EqualValues(t, 3, snap.ImagesReceived)
	require.EqualValues(t, 2, snap.ImagesCompressed)
	require.EqualValues(t, 1, snap.TargetsMet)
	require.EqualValues(t, 1, snap.Fallbacks)
	require.EqualValues(t, 1, snap.ImagesWithErrors)
	require.EqualValues(t, 12, snap.Trials)
	require.InDelta(t, 6.0, snap.AverageTrials, 1e-9)
	require.InDelta(t, 50.0, snap.PercentageSaved, 1e-9)
	require.Equal(t, map[string]int64{"jpeg": 2}, snap.Formats)
}

func TestRecordFixed(t *testing.T) {
	s := NewStatistics()
	s.RecordFixed("webp", 2048, 1024)
	s.RecordCompressed("jpeg", true, 3, 2048, 1024)

	snap := s.Snapshot()
	require.EqualValues(t, 2, snap.ImagesCompressed)
	require.EqualValues(t, 1, snap.FixedQuality)
	require.EqualValues(t, 1, snap.TargetsMet)
	require.Zero(t, snap.Fallbacks)
	require.EqualValues(t, 4, snap.Trials)
	require.Equal(t, map[string]int64{"webp": 1, "jpeg": 1}, snap.Formats)
	require.Contains(t, s.GetSummary(), "Fixed Quality: 1")
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.RecordCompressed([]string{"jpeg", "webp"}[i%2], true, 1, 10, 5)
			s.AddError(fmt.Sprintf("img-%d", i), "encode", "boom")
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	require.EqualValues(t, 50, snap.ImagesCompressed)
	require.EqualValues(t, 25, snap.Formats["webp"])
	require.Len(t, snap.RecentErrors, 50)
}

func TestAddErrorKeepsRecent(t *testing.T) {
	s := NewStatistics()
	for i := 0; i < maxErrors+5; i++ {
		s.AddError(fmt.Sprintf("img-%d", i), "encode", "boom")
	}

	snap := s.Snapshot()
	require.Len(t, snap.RecentErrors, maxErrors)
	require.Equal(t, "img-5", snap.RecentErrors[0].Name)
	require.Contains(t, s.GetErrorSummary(), "more errors")
}

func TestSummaries(t *testing.T) {
	s := NewStatistics()
	require.Equal(t, "No format statistics available", s.GetFormatBreakdown())
	require.Equal(t, "No errors occurred during processing", s.GetErrorSummary())

	s.RecordCompressed("webp", true, 2, 2048, 1024)
	s.RecordCompressed("jpeg", true, 2, 2048, 1024)
	require.Equal(t, "Format Breakdown:\n  jpeg: 1\n  webp: 1\n", s.GetFormatBreakdown())
	require.Contains(t, s.GetSummary(), "Bytes In: 4.0 KB")
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "1.5 KB", formatBytes(1536))
	require.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
