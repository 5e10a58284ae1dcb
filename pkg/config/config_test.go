package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreWireCompatible(t *testing.T) {
	c := Default()
	s := c.Socket
	if s.MaxMessageSize != 1400 || s.ChunkSize != 1200 || s.MaxRetries != 5 {
		t.Fatalf("socket defaults: %+v", s)
	}
	if s.RetryIntervalMS != 500 || s.RequestTimeoutMS != 5000 || s.ReassemblyTimeoutMS != 30000 {
		t.Fatalf("timing defaults: %+v", s)
	}
	if !s.EnableChecksum || s.Compression.Enabled {
		t.Fatalf("checksum/compression defaults: %+v", s)
	}
	if s.Compression.MinSize != 256 || s.Compression.MinReductionPct != 10 {
		t.Fatalf("compression thresholds: %+v", s.Compression)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateMessageSizeBounds(t *testing.T) {
	for _, size := range []int{99, 65001, -1} {
		c := Default()
		c.Socket.MaxMessageSize = size
		if err := c.Validate(); !errors.Is(err, ErrInvalidOption) {
			t.Fatalf("max_message_size %d: err = %v", size, err)
		}
	}
	for _, size := range []int{100, 65000, 1400} {
		c := Default()
		c.Socket.MaxMessageSize = size
		if err := c.Validate(); err != nil {
			t.Fatalf("max_message_size %d rejected: %v", size, err)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	c := Default()
	c.WorkerID = 1024
	if err := c.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("worker_id: %v", err)
	}
	c = Default()
	c.Socket.Compression.Codec = "brotli"
	if err := c.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("codec: %v", err)
	}
	c = Default()
	c.Log.Level = "loud"
	if err := c.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("log level: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdgram.yaml")
	yaml := `
socket:
  max_message_size: 2000
  compression:
    enabled: true
    codec: zstd
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Socket.MaxMessageSize != 2000 {
		t.Fatalf("max_message_size = %d", c.Socket.MaxMessageSize)
	}
	if !c.Socket.Compression.Enabled || c.Socket.Compression.Codec != "zstd" {
		t.Fatalf("compression = %+v", c.Socket.Compression)
	}
	// untouched keys keep defaults
	if c.Socket.ChunkSize != 1200 {
		t.Fatalf("chunk_size = %d", c.Socket.ChunkSize)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdgram.yaml")
	if err := os.WriteFile(path, []byte("socket:\n  max_message_size: 10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("err = %v", err)
	}
}
