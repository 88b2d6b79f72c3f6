package targetsize

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

// ErrInvalidParameters is returned when an EncodeRequest is rejected before
// any codec call.
var ErrInvalidParameters = errors.New("invalid parameters")

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Extension returns the file extension without dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// ParseFormat resolves a user supplied format name. An empty name yields JPEG.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidParameters, name)
	}
}

// Strategy selects how the quality range is walked.
type Strategy string

const (
	// StrategyBinary bisects [MinQuality, StartQuality]. It is the default.
	StrategyBinary Strategy = "binary"
	// StrategyLinear walks down from StartQuality in Step decrements. It tries
	// more qualities and tolerates codecs whose size is not monotonic in quality.
	StrategyLinear Strategy = "linear"
)

// Resize bounds the source once before the search. Zero means unbounded.
type Resize struct {
	MaxWidth  int
	MaxHeight int
}

// IsZero reports whether no bound is set.
func (r Resize) IsZero() bool {
	return r.MaxWidth == 0 && r.MaxHeight == 0
}

// EncodeRequest describes one image to fit under TargetKB.
type EncodeRequest struct {
	Source       []byte
	TargetKB     float64
	Format       Format
	StartQuality int
	MinQuality   int
	Step         int
	Strategy     Strategy
	Resize       Resize
}

// Trial is the outcome of one codec invocation.
type Trial struct {
	Quality int
	Bytes   []byte
	SizeKB  float64
}

// EncodeResult is the chosen trial.
type EncodeResult struct {
	Bytes       []byte
	Format      Format
	QualityUsed int
	SizeKB      float64
	// MetTarget is false when even the smallest observed trial exceeds the target.
	MetTarget bool
	// Trials counts codec invocations.
	Trials int
	// NonMonotonic is set when a lower quality produced a larger output than a
	// higher one during this search.
	NonMonotonic bool
}

// Codec is the stateless encoding capability the search drives.
type Codec interface {
	// Decode parses src and applies resize once. The returned image is shared
	// by every trial of a request.
	Decode(src []byte, resize Resize) (image.Image, error)
	// Encode encodes img at quality (1-100) in format.
	Encode(img image.Image, quality int, format Format) ([]byte, error)
}

// CodecFailure wraps an error raised by the Codec.
type CodecFailure struct {
	// Quality is the trial quality, or 0 when decoding failed.
	Quality int
	Reason  string
	Err     error
}

func (e *CodecFailure) Error() string {
	if e.Quality == 0 {
		return fmt.Sprintf("codec failure: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("codec failure at quality %d: %s: %v", e.Quality, e.Reason, e.Err)
}

func (e *CodecFailure) Unwrap() error {
	return e.Err
}

// Validate checks ranges and fills Format, Strategy and Step defaults.
func (r *EncodeRequest) Validate() error {
	if !(r.TargetKB > 0) || math.IsInf(r.TargetKB, 1) {
		return fmt.Errorf("%w: targetKB must be positive, got %v", ErrInvalidParameters, r.TargetKB)
	}
	if r.MinQuality < 1 {
		return fmt.Errorf("%w: minQuality must be at least 1, got %d", ErrInvalidParameters, r.MinQuality)
	}
	if r.StartQuality > 100 {
		return fmt.Errorf("%w: startQuality must be at most 100, got %d", ErrInvalidParameters, r.StartQuality)
	}
	if r.MinQuality > r.StartQuality {
		return fmt.Errorf("%w: minQuality %d exceeds startQuality %d", ErrInvalidParameters, r.MinQuality, r.StartQuality)
	}
	if r.Resize.MaxWidth < 0 || r.Resize.MaxHeight < 0 {
		return fmt.Errorf("%w: resize bounds must be positive", ErrInvalidParameters)
	}

	if r.Format == "" {
		r.Format = FormatJPEG
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}

	switch r.Strategy {
	case "":
		r.Strategy = StrategyBinary
	case StrategyBinary, StrategyLinear:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidParameters, r.Strategy)
	}

	if r.Step < 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidParameters, r.Step)
	}
	if r.Step == 0 {
		r.Step = DefaultStep
	}
	return nil
}

// Defaults used by callers that leave fields unset.
const (
	DefaultStartQuality = 85
	DefaultMinQuality   = 10
	DefaultStep         = 5
)

func sizeKB(b []byte) float64 {
	return float64(len(b)) / 1024
}
