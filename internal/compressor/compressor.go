package compressor

import (
	"context"
	"fmt"
	"time"

	"imgpress-go/internal/targetsize"
)

// Action describes what happened to one image.
type Action string

const (
	// ActionCompressed means the output fits the target, or fixed-quality
	// encoding succeeded.
	ActionCompressed Action = "compressed"
	// ActionFallback means no quality fit the target and the smallest
	// output was kept.
	ActionFallback Action = "fallback"
	// ActionOriginal means the encoded file was not smaller than the
	// original, which was kept instead. File mode only.
	ActionOriginal Action = "original"
	// ActionSkipped means the file already carries the imgpress marker.
	ActionSkipped Action = "skipped"
	ActionError   Action = "error"
)

// Item is one uploaded image.
type Item struct {
	Name string
	Data []byte
}

// ProgressFunc is called once per finished image. Calls are serialized.
type ProgressFunc func(Result)

// Params defines the compression applied to every image of a batch.
// TargetKB == 0 selects fixed-quality encoding at Quality.
type Params struct {
	// BatchID tags logs and progress. Generated when empty.
	BatchID      string
	TargetKB     float64
	Quality      int
	StartQuality int
	MinQuality   int
	Step         int
	Strategy     targetsize.Strategy
	Format       targetsize.Format
	Resize       targetsize.Resize
	Progress     ProgressFunc
}

// Validate rejects out-of-range parameters and fills defaults.
func (p *Params) Validate() error {
	if p.TargetKB < 0 {
		return fmt.Errorf("%w: targetKB must not be negative, got %v", targetsize.ErrInvalidParameters, p.TargetKB)
	}
	format, err := targetsize.ParseFormat(string(p.Format))
	if err != nil {
		return err
	}
	p.Format = format

	if p.TargetKB == 0 {
		if p.Quality < 1 || p.Quality > 100 {
			return fmt.Errorf("%w: quality must be between 1 and 100, got %d", targetsize.ErrInvalidParameters, p.Quality)
		}
		if p.Resize.MaxWidth < 0 || p.Resize.MaxHeight < 0 {
			return fmt.Errorf("%w: resize bounds must be positive", targetsize.ErrInvalidParameters)
		}
		return nil
	}

	if p.StartQuality == 0 {
		p.StartQuality = targetsize.DefaultStartQuality
	}
	if p.MinQuality == 0 {
		p.MinQuality = targetsize.DefaultMinQuality
	}
	req := p.request(nil)
	if err := req.Validate(); err != nil {
		return err
	}
	p.Strategy, p.Step = req.Strategy, req.Step
	return nil
}

func (p Params) request(src []byte) targetsize.EncodeRequest {
	return targetsize.EncodeRequest{
		Source:       src,
		TargetKB:     p.TargetKB,
		Format:       p.Format,
		StartQuality: p.StartQuality,
		MinQuality:   p.MinQuality,
		Step:         p.Step,
		Strategy:     p.Strategy,
		Resize:       p.Resize,
	}
}

// Result describes the outcome for a single image.
type Result struct {
	Index           int               `json:"index"`
	Name            string            `json:"name"`
	InputPath       string            `json:"inputPath,omitempty"`
	OutputPath      string            `json:"outputPath,omitempty"`
	Format          targetsize.Format `json:"format"`
	OriginalSize    int64             `json:"originalSize"`
	CompressedSize  int64             `json:"compressedSize"`
	PercentageSaved float64           `json:"percentageSaved"`
	QualityUsed     int               `json:"qualityUsed"`
	SizeKB          float64           `json:"sizeKB"`
	MetTarget       bool              `json:"metTarget"`
	NonMonotonic    bool              `json:"nonMonotonic,omitempty"`
	Trials          int               `json:"trials"`
	Action          Action            `json:"action"`
	Message         string            `json:"message"`
	Success         bool              `json:"success"`
	Hash            string            `json:"hash,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	FinishedAt      time.Time         `json:"finishedAt"`
	Error           error             `json:"-"`
	Data            []byte            `json:"-"`
}

// Batch is the ordered outcome of Compress.
type Batch struct {
	ID           string
	Results      []Result
	SuccessCount int
	TotalCount   int
}

// Succeeded returns the successful results in input order.
func (b *Batch) Succeeded() []Result {
	out := make([]Result, 0, b.SuccessCount)
	for _, r := range b.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// FileParams defines a file-mode run over paths on disk.
type FileParams struct {
	InputPaths []string
	TargetDir  string
	// Threshold keeps the original when compressed >= original*Threshold.
	Threshold float64
	// Formats lists accepted extensions, with dot.
	Formats []string
	Params  Params
}

// Compressor defines the interface for image compression.
type Compressor interface {
	// Compress processes uploaded images independently. A failed image never
	// aborts the others.
	Compress(ctx context.Context, items []Item, params Params) (*Batch, error)
	// CompressFiles processes files or directories and writes the outputs
	// to TargetDir.
	CompressFiles(ctx context.Context, params FileParams) ([]Result, error)
}
