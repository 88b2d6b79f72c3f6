package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"imgpress-go/internal/targetsize"
)

// Config represents the main configuration structure
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Compression CompressionConfig `mapstructure:"compression"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxFiles       int           `mapstructure:"max_files"`
	MaxFileSize    int64         `mapstructure:"max_file_size"` // bytes
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// CompressionConfig contains defaults for compression requests
type CompressionConfig struct {
	DefaultQuality int      `mapstructure:"default_quality"`
	StartQuality   int      `mapstructure:"start_quality"`
	MinQuality     int      `mapstructure:"min_quality"`
	Step           int      `mapstructure:"step"`
	Format         string   `mapstructure:"format"`
	Strategy       string   `mapstructure:"strategy"`
	Threshold      float64  `mapstructure:"threshold"`
	OutputDir      string   `mapstructure:"output_dir"`
	Formats        []string `mapstructure:"formats"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads int `mapstructure:"worker_threads"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   2 * time.Minute,
			RequestTimeout: 90 * time.Second,
			MaxFiles:       20,
			MaxFileSize:    50 << 20,
			AllowedOrigins: []string{"*"},
		},
		Compression: CompressionConfig{
			DefaultQuality: 80,
			StartQuality:   targetsize.DefaultStartQuality,
			MinQuality:     targetsize.DefaultMinQuality,
			Step:           targetsize.DefaultStep,
			Format:         string(targetsize.FormatJPEG),
			Strategy:       string(targetsize.StrategyBinary),
			Threshold:      1.01,
			OutputDir:      "compressed",
			Formats:        []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tif", ".tiff"},
		},
		Performance: PerformanceConfig{
			WorkerThreads: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "imgpress.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imgpress")
		v.AddConfigPath("/etc/imgpress")
	}

	v.SetEnvPrefix("IMGPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers every key so AutomaticEnv applies to Unmarshal even
// when no config file sets it.
func bindEnv(v *viper.Viper, c *Config) {
	for key, val := range map[string]any{
		"server.port":                 c.Server.Port,
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"server.request_timeout":      c.Server.RequestTimeout,
		"server.max_files":            c.Server.MaxFiles,
		"server.max_file_size":        c.Server.MaxFileSize,
		"server.allowed_origins":      c.Server.AllowedOrigins,
		"compression.default_quality": c.Compression.DefaultQuality,
		"compression.start_quality":   c.Compression.StartQuality,
		"compression.min_quality":     c.Compression.MinQuality,
		"compression.step":            c.Compression.Step,
		"compression.format":          c.Compression.Format,
		"compression.strategy":        c.Compression.Strategy,
		"compression.threshold":       c.Compression.Threshold,
		"compression.output_dir":      c.Compression.OutputDir,
		"compression.formats":         c.Compression.Formats,
		"performance.worker_threads":  c.Performance.WorkerThreads,
		"logging.level":               c.Logging.Level,
		"logging.file_path":           c.Logging.FilePath,
		"logging.max_size":            c.Logging.MaxSize,
		"logging.max_backups":         c.Logging.MaxBackups,
		"logging.max_age":             c.Logging.MaxAge,
		"logging.compress":            c.Logging.Compress,
	} {
		v.SetDefault(key, val)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxFiles <= 0 {
		c.Server.MaxFiles = 20
	}
	if c.Server.MaxFileSize <= 0 {
		c.Server.MaxFileSize = 50 << 20
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 90 * time.Second
	}

	comp := &c.Compression
	if comp.DefaultQuality < 1 || comp.DefaultQuality > 100 {
		return fmt.Errorf("invalid default_quality: %d (valid: 1-100)", comp.DefaultQuality)
	}
	if comp.MinQuality < 1 || comp.StartQuality > 100 || comp.MinQuality > comp.StartQuality {
		return fmt.Errorf("invalid quality range: min_quality %d, start_quality %d", comp.MinQuality, comp.StartQuality)
	}
	if comp.Step <= 0 {
		comp.Step = targetsize.DefaultStep
	}

	format, err := targetsize.ParseFormat(comp.Format)
	if err != nil {
		return fmt.Errorf("invalid format: %s (valid: jpeg, png, webp)", comp.Format)
	}
	comp.Format = string(format)

	validStrategies := map[string]bool{
		string(targetsize.StrategyBinary): true,
		string(targetsize.StrategyLinear): true,
	}
	comp.Strategy = strings.ToLower(comp.Strategy)
	if !validStrategies[comp.Strategy] {
		return fmt.Errorf("invalid strategy: %s (valid: binary, linear)", comp.Strategy)
	}

	if comp.Threshold <= 0 {
		comp.Threshold = 1.01
	}
	comp.Formats = normalizeExtensions(comp.Formats)

	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Format returns the configured default output format.
func (c *Config) Format() targetsize.Format {
	return targetsize.Format(c.Compression.Format)
}

// Strategy returns the configured default search strategy.
func (c *Config) Strategy() targetsize.Strategy {
	return targetsize.Strategy(c.Compression.Strategy)
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
