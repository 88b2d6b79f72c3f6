package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imgpress-go/internal/codec"
	"imgpress-go/internal/compressor"
	"imgpress-go/internal/config"
	"imgpress-go/internal/statistics"
	"imgpress-go/internal/targetsize"
)

// requestFlags holds the encoding flags shared by compress and probe.
type requestFlags struct {
	targetKB     float64
	quality      int
	startQuality int
	minQuality   int
	format       string
	strategy     string
	maxWidth     int
	maxHeight    int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.targetKB, "target-kb", 0, "target size in KB (0 compresses at --quality)")
	cmd.Flags().IntVar(&f.quality, "quality", 0, "fixed quality, or the search start when --target-kb is set")
	cmd.Flags().IntVar(&f.startQuality, "start-quality", 0, "highest quality tried by the search")
	cmd.Flags().IntVar(&f.minQuality, "min-quality", 0, "lowest quality tried by the search")
	cmd.Flags().StringVar(&f.format, "format", "", "output format: jpeg, png or webp")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "search strategy: binary or linear")
	cmd.Flags().IntVar(&f.maxWidth, "max-width", 0, "fit inside this width before encoding")
	cmd.Flags().IntVar(&f.maxHeight, "max-height", 0, "fit inside this height before encoding")
}

// params merges flags over the configured defaults.
func (f *requestFlags) params(cfg *config.Config) (compressor.Params, error) {
	p := compressor.Params{
		TargetKB:     f.targetKB,
		Quality:      cfg.Compression.DefaultQuality,
		StartQuality: cfg.Compression.StartQuality,
		MinQuality:   cfg.Compression.MinQuality,
		Step:         cfg.Compression.Step,
		Strategy:     cfg.Strategy(),
		Format:       cfg.Format(),
		Resize:       targetsize.Resize{MaxWidth: f.maxWidth, MaxHeight: f.maxHeight},
	}
	if f.quality != 0 {
		p.Quality = f.quality
		p.StartQuality = f.quality
	}
	if f.startQuality != 0 {
		p.StartQuality = f.startQuality
	}
	if f.minQuality != 0 {
		p.MinQuality = f.minQuality
	}
	if f.strategy != "" {
		p.Strategy = targetsize.Strategy(f.strategy)
	}
	if f.format != "" {
		format, err := targetsize.ParseFormat(f.format)
		if err != nil {
			return p, err
		}
		p.Format = format
	}
	return p, p.Validate()
}

var (
	compressFlags requestFlags
	outDir        string
)

// compressCmd compresses files and directories on disk.
var compressCmd = &cobra.Command{
	Use:   "compress [paths...]",
	Short: "Compress image files and directories",
	Long: `Compresses every supported image under the given paths and writes the
results to the output directory. JPEG outputs are stamped with an EXIF
marker when exiftool is installed, and stamped inputs are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args)
	},
}

func init() {
	compressFlags.register(compressCmd)
	compressCmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
}

func runCompress(paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := compressFlags.params(cfg)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = cfg.Compression.OutputDir
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	comp := compressor.NewDefaultCompressor(codec.New(),
		compressor.WithWorkers(cfg.Performance.WorkerThreads),
		compressor.WithLogger(log),
		compressor.WithStatistics(stats),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := comp.CompressFiles(ctx, compressor.FileParams{
		InputPaths: paths,
		TargetDir:  outDir,
		Threshold:  cfg.Compression.Threshold,
		Formats:    cfg.Compression.Formats,
		Params:     params,
	})
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if !quiet {
		for _, r := range results {
			fmt.Printf("%-10s %-40s %8.1f KB  q=%-3d %s\n", r.Action, r.InputPath, r.SizeKB, r.QualityUsed, r.Message)
		}
		fmt.Println("\n" + stats.GetSummary())
	}
	return nil
}
