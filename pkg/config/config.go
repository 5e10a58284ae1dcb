// Package config provides YAML-based configuration loading for rdgram.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidOption wraps every validation failure so callers can test for
// the kind without matching message text.
var ErrInvalidOption = errors.New("config: invalid option")

// Bounds for the single-datagram threshold.
const (
	MinMessageSize = 100
	MaxMessageSize = 65000
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the endpoint
	AppName string `mapstructure:"app_name"`

	// WorkerID feeds the snowflake id generator, [0, 1023]
	WorkerID int64 `mapstructure:"worker_id"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Socket holds the reliability-layer tuning knobs
	Socket SocketConfig `mapstructure:"socket"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SocketConfig mirrors the engine options on the wire-compatible defaults.
type SocketConfig struct {
	// MaxMessageSize is the body size above which a payload is chunked,
	// [100, 65000]
	MaxMessageSize int `mapstructure:"max_message_size"`
	// ChunkSize is the raw byte length of each chunk before base64
	ChunkSize int `mapstructure:"chunk_size"`

	MaxRetries          int `mapstructure:"max_retries"`
	RetryIntervalMS     int `mapstructure:"retry_interval_ms"`
	RequestTimeoutMS    int `mapstructure:"request_timeout_ms"`
	ReassemblyTimeoutMS int `mapstructure:"reassembly_timeout_ms"`

	EnableChecksum bool `mapstructure:"enable_checksum"`

	Compression CompressionConfig `mapstructure:"compression"`
}

// CompressionConfig tunes the compression pipeline.
type CompressionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Codec   string `mapstructure:"codec"` // none, gzip, snappy, lz4, zstd
	Level   int    `mapstructure:"level"`
	// MinSize is the smallest body worth compressing, in bytes
	MinSize int `mapstructure:"min_size"`
	// MinReductionPct discards results that shrink less than this percentage
	MinReductionPct float64 `mapstructure:"min_reduction_pct"`
}

// Default returns a Config populated with the wire-compatible defaults.
func Default() *Config {
	return &Config{
		AppName:  "rdgram",
		WorkerID: 0,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/rdgram.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Socket: SocketConfig{
			MaxMessageSize:      1400,
			ChunkSize:           1200,
			MaxRetries:          5,
			RetryIntervalMS:     500,
			RequestTimeoutMS:    5000,
			ReassemblyTimeoutMS: 30000,
			EnableChecksum:      true,
			Compression: CompressionConfig{
				Enabled:         false,
				Codec:           "none",
				Level:           6,
				MinSize:         256,
				MinReductionPct: 10,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix RDGRAM and `.`/`-` are replaced with
// `_`. Example: RDGRAM_SOCKET_MAX_RETRIES=3
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RDGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("worker_id", cfg.WorkerID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("socket.max_message_size", cfg.Socket.MaxMessageSize)
	v.SetDefault("socket.chunk_size", cfg.Socket.ChunkSize)
	v.SetDefault("socket.max_retries", cfg.Socket.MaxRetries)
	v.SetDefault("socket.retry_interval_ms", cfg.Socket.RetryIntervalMS)
	v.SetDefault("socket.request_timeout_ms", cfg.Socket.RequestTimeoutMS)
	v.SetDefault("socket.reassembly_timeout_ms", cfg.Socket.ReassemblyTimeoutMS)
	v.SetDefault("socket.enable_checksum", cfg.Socket.EnableChecksum)
	v.SetDefault("socket.compression.enabled", cfg.Socket.Compression.Enabled)
	v.SetDefault("socket.compression.codec", cfg.Socket.Compression.Codec)
	v.SetDefault("socket.compression.level", cfg.Socket.Compression.Level)
	v.SetDefault("socket.compression.min_size", cfg.Socket.Compression.MinSize)
	v.SetDefault("socket.compression.min_reduction_pct", cfg.Socket.Compression.MinReductionPct)

	if path == "" {
		if envPath := os.Getenv("RDGRAM_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rdgram")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rdgram"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every option and normalizes empty ones.
func (c *Config) Validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidOption, c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if c.WorkerID < 0 || c.WorkerID > 1023 {
		return fmt.Errorf("%w: worker_id %d outside [0, 1023]", ErrInvalidOption, c.WorkerID)
	}

	s := &c.Socket
	if s.MaxMessageSize < MinMessageSize || s.MaxMessageSize > MaxMessageSize {
		return fmt.Errorf("%w: max_message_size %d outside [%d, %d]", ErrInvalidOption, s.MaxMessageSize, MinMessageSize, MaxMessageSize)
	}
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d", ErrInvalidOption, s.ChunkSize)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries %d", ErrInvalidOption, s.MaxRetries)
	}
	if s.RetryIntervalMS <= 0 || s.RequestTimeoutMS <= 0 || s.ReassemblyTimeoutMS <= 0 {
		return fmt.Errorf("%w: retry/timeout intervals must be positive", ErrInvalidOption)
	}
	switch strings.ToLower(strings.TrimSpace(s.Compression.Codec)) {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("%w: compression.codec %q", ErrInvalidOption, s.Compression.Codec)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
