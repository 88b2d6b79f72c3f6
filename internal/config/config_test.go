package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imgpress-go/internal/targetsize"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 20, cfg.Server.MaxFiles)
	require.EqualValues(t, 50<<20, cfg.Server.MaxFileSize)
	require.Equal(t, targetsize.FormatJPEG, cfg.Format())
	require.Equal(t, targetsize.StrategyBinary, cfg.Strategy())
	require.Equal(t, targetsize.DefaultStartQuality, cfg.Compression.StartQuality)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imgpress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  request_timeout: 45s
compression:
  format: JPG
  strategy: Linear
  formats: [PNG, jpg]
logging:
  level: debug
`), 0644))

	t.Setenv("IMGPRESS_PERFORMANCE_WORKER_THREADS", "7")
	t.Setenv("IMGPRESS_COMPRESSION_MIN_QUALITY", "20")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, "jpeg", cfg.Compression.Format)
	require.Equal(t, targetsize.StrategyLinear, cfg.Strategy())
	require.Equal(t, []string{".png", ".jpg"}, cfg.Compression.Formats)
	require.Equal(t, 7, cfg.Performance.WorkerThreads)
	require.Equal(t, 20, cfg.Compression.MinQuality)
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"port":      func(c *Config) { c.Server.Port = 0 },
		"quality":   func(c *Config) { c.Compression.DefaultQuality = 101 },
		"range":     func(c *Config) { c.Compression.MinQuality = 90 },
		"format":    func(c *Config) { c.Compression.Format = "gif" },
		"strategy":  func(c *Config) { c.Compression.Strategy = "random" },
		"log level": func(c *Config) { c.Logging.Level = "trace" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Performance.WorkerThreads = 0
	cfg.Compression.Threshold = 0
	require.NoError(t, cfg.Validate())
	require.Equal(t, 4, cfg.Performance.WorkerThreads)
	require.Equal(t, 1.01, cfg.Compression.Threshold)
}
