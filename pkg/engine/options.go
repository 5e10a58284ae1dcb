package engine

import (
	"fmt"
	"strings"
	"time"

	"rdgram/pkg/compress"
	"rdgram/pkg/config"
	"rdgram/pkg/protocol"
)

// Options tune one engine instance. Zero fields are filled from the
// wire-compatible defaults.
type Options struct {
	// MaxMessageSize is the body size above which a payload is chunked,
	// [100, 65000].
	MaxMessageSize int
	// ChunkSize is the raw byte length of each chunk before base64.
	ChunkSize int

	MaxRetries        int
	RetryInterval     time.Duration
	RequestTimeout    time.Duration
	ReassemblyTimeout time.Duration

	// EnableChecksum is not defaulted here: DefaultOptions and FromConfig
	// carry the wire default (on); a zero Options literal leaves it off.
	EnableChecksum bool

	Compression compress.Options

	// CleanupInterval paces the garbage-collection tick.
	CleanupInterval time.Duration
	// RequestCleanupAge is the staleness window for the tracker sweep,
	// independent of per-request timeouts.
	RequestCleanupAge time.Duration

	// WorkerID feeds the snowflake generator.
	WorkerID int64
}

// DefaultOptions mirrors config.Default().
func DefaultOptions() Options {
	return FromConfig(config.Default())
}

// FromConfig maps the loaded configuration onto engine options.
func FromConfig(c *config.Config) Options {
	s := c.Socket
	return Options{
		MaxMessageSize:    s.MaxMessageSize,
		ChunkSize:         s.ChunkSize,
		MaxRetries:        s.MaxRetries,
		RetryInterval:     time.Duration(s.RetryIntervalMS) * time.Millisecond,
		RequestTimeout:    time.Duration(s.RequestTimeoutMS) * time.Millisecond,
		ReassemblyTimeout: time.Duration(s.ReassemblyTimeoutMS) * time.Millisecond,
		EnableChecksum:    s.EnableChecksum,
		Compression: compress.Options{
			Enabled:         s.Compression.Enabled,
			Codec:           CodecByName(s.Compression.Codec),
			Level:           s.Compression.Level,
			MinSize:         s.Compression.MinSize,
			MinReductionPct: s.Compression.MinReductionPct,
		},
		WorkerID: c.WorkerID,
	}
}

// CodecByName resolves a configured codec name; unknown names map to none.
func CodecByName(name string) protocol.CodecID {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gzip":
		return protocol.CodecGzip
	case "snappy":
		return protocol.CodecSnappy
	case "lz4":
		return protocol.CodecLZ4
	case "zstd":
		return protocol.CodecZstd
	default:
		return protocol.CodecNone
	}
}

func (o *Options) withDefaults() {
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 1400
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 1200
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.ReassemblyTimeout == 0 {
		o.ReassemblyTimeout = 30 * time.Second
	}
	if o.Compression.MinSize == 0 {
		o.Compression.MinSize = 256
	}
	if o.Compression.MinReductionPct == 0 {
		o.Compression.MinReductionPct = 10
	}
	if o.CleanupInterval == 0 {
		o.CleanupInterval = 10 * time.Second
	}
	if o.RequestCleanupAge == 0 {
		o.RequestCleanupAge = time.Minute
	}
}

func (o Options) validate() error {
	if o.MaxMessageSize < config.MinMessageSize || o.MaxMessageSize > config.MaxMessageSize {
		return fmt.Errorf("%w: max message size %d outside [%d, %d]",
			config.ErrInvalidOption, o.MaxMessageSize, config.MinMessageSize, config.MaxMessageSize)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", config.ErrInvalidOption, o.ChunkSize)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries %d", config.ErrInvalidOption, o.MaxRetries)
	}
	if o.RetryInterval <= 0 || o.RequestTimeout <= 0 || o.ReassemblyTimeout <= 0 {
		return fmt.Errorf("%w: retry/timeout intervals must be positive", config.ErrInvalidOption)
	}
	return nil
}
