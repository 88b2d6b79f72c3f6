package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"imgpress-go/internal/codec"
	"imgpress-go/internal/extractor"
	"imgpress-go/internal/logger"
	"imgpress-go/internal/targetsize"
)

var probeFlags requestFlags

// probeCmd runs the size search on one file and prints every trial.
var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show the quality search for a single file",
	Long: `Runs the target-size search on one file without writing output and
prints each quality tried with its encoded size.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(args[0])
	},
}

func init() {
	probeFlags.register(probeCmd)
	_ = probeCmd.MarkFlagRequired("target-kb")
}

// tracingCodec records the size of every encode.
type tracingCodec struct {
	targetsize.Codec
	trials []targetsize.Trial
}

func (t *tracingCodec) Encode(img image.Image, quality int, format targetsize.Format) ([]byte, error) {
	data, err := t.Codec.Encode(img, quality, format)
	if err == nil {
		t.trials = append(t.trials, targetsize.Trial{Quality: quality, SizeKB: float64(len(data)) / 1024})
	}
	return data, err
}

func runProbe(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := probeFlags.params(cfg)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	info, err := codec.Inspect(src)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	fmt.Printf("%s: %s %dx%d, %.1f KB\n", path, info.Format, info.Width, info.Height, float64(len(src))/1024)
	if meta, err := extractor.NewEXIFExtractor(logger.Discard()).Extract(path); err == nil {
		fmt.Printf("exif: make=%q model=%q software=%q orientation=%d\n", meta.Make, meta.Model, meta.Software, meta.Orientation)
		if meta.TakenAt != nil {
			fmt.Printf("taken: %s\n", meta.TakenAt.Format(time.DateTime))
		}
	}

	tc := &tracingCodec{Codec: codec.New()}
	res, err := targetsize.EncodeToTarget(context.Background(), targetsize.EncodeRequest{
		Source:       src,
		TargetKB:     params.TargetKB,
		Format:       params.Format,
		StartQuality: params.StartQuality,
		MinQuality:   params.MinQuality,
		Step:         params.Step,
		Strategy:     params.Strategy,
		Resize:       params.Resize,
	}, tc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tQUALITY\tSIZE KB\tFITS")
	for i, tr := range tc.trials {
		fmt.Fprintf(w, "%d\t%d\t%.2f\t%t\n", i+1, tr.Quality, tr.SizeKB, tr.SizeKB <= params.TargetKB)
	}
	w.Flush()

	fmt.Printf("\nquality %d, %.2f KB, target met: %t, trials: %d\n", res.QualityUsed, res.SizeKB, res.MetTarget, res.Trials)
	if res.NonMonotonic {
		fmt.Println("warning: encoded size was not monotonic in quality")
	}
	return nil
}
