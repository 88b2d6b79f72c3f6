package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"imgpress-go/internal/codec"
	"imgpress-go/internal/compressor"
	"imgpress-go/internal/statistics"
	"imgpress-go/internal/web"
)

var port int

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the compression API:

  GET  /api/health
  POST /api/compress            images as base64 data URLs
  POST /api/compress/download   raw image or ZIP archive
  POST /api/pdf                 images laid out as PDF pages
  POST /api/compress-pdf        compress, then PDF
  GET  /api/statistics
  GET  /ws                      progress events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config)")
}

// runServe runs the server until a signal arrives, then shuts it down.
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	provider := codec.New()
	comp := compressor.NewDefaultCompressor(provider,
		compressor.WithWorkers(cfg.Performance.WorkerThreads),
		compressor.WithLogger(log),
		compressor.WithStatistics(stats),
	)
	server := web.NewServer(cfg, log, comp, stats)
	log.Info(provider.Registry().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped gracefully")
	return nil
}
