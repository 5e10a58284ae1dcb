package compress

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"rdgram/pkg/protocol"
)

func TestCodecsRoundtrip(t *testing.T) {
	reg := NewRegistry(6)
	data := []byte(strings.Repeat("reliable datagrams ", 200))
	for _, id := range []protocol.CodecID{protocol.CodecGzip, protocol.CodecSnappy, protocol.CodecLZ4, protocol.CodecZstd} {
		c := reg.Get(id)
		if c == nil {
			t.Fatalf("%v not registered", id)
		}
		packed, err := c.Compress(data)
		if err != nil {
			t.Fatalf("%s compress: %v", c.Name(), err)
		}
		if len(packed) >= len(data) {
			t.Fatalf("%s did not shrink repetitive input: %d >= %d", c.Name(), len(packed), len(data))
		}
		out, err := c.Decompress(packed)
		if err != nil {
			t.Fatalf("%s decompress: %v", c.Name(), err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("%s roundtrip mismatch", c.Name())
		}
	}
}

func TestRegistryUnknownCodec(t *testing.T) {
	reg := NewRegistry(0)
	if reg.Get(protocol.CodecNone) != nil {
		t.Fatalf("registry returned a codec for none")
	}
	if reg.Available(protocol.CodecID(7)) {
		t.Fatalf("registry claims availability for unknown id")
	}
}

func TestShouldCompress(t *testing.T) {
	p := NewPipeline(Options{Enabled: true, Codec: protocol.CodecGzip, MinSize: 256, MinReductionPct: 10})
	if p.ShouldCompress(255) {
		t.Fatalf("compressed below min size")
	}
	if !p.ShouldCompress(256) {
		t.Fatalf("refused at min size")
	}
	p.Reconfigure(Options{Enabled: false, Codec: protocol.CodecGzip, MinSize: 0})
	if p.ShouldCompress(1 << 20) {
		t.Fatalf("compressed while disabled")
	}
}

func TestTryCompressRoundtrip(t *testing.T) {
	p := NewPipeline(Options{Enabled: true, Codec: protocol.CodecZstd, MinSize: 64, MinReductionPct: 10})
	payload := []byte(strings.Repeat("x", 1000))
	res := p.TryCompress(payload)
	if res == nil {
		t.Fatalf("compressible payload rejected")
	}
	if res.OriginalSize != 1000 || res.CompressedSize >= 900 {
		t.Fatalf("sizes: os=%d cs=%d", res.OriginalSize, res.CompressedSize)
	}
	out, ok := p.TryDecompress(res.Data, res.Codec)
	if !ok || !bytes.Equal(out, payload) {
		t.Fatalf("roundtrip failed")
	}
}

func TestTryCompressRejectsPoorReduction(t *testing.T) {
	p := NewPipeline(Options{Enabled: true, Codec: protocol.CodecGzip, MinSize: 64, MinReductionPct: 10})
	noise := make([]byte, 2048)
	if _, err := rand.Read(noise); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if res := p.TryCompress(noise); res != nil {
		t.Fatalf("random noise reported %d%% reduction", 100-100*res.CompressedSize/res.OriginalSize)
	}
}

func TestTryDecompressFailures(t *testing.T) {
	p := NewPipeline(Options{Enabled: true, Codec: protocol.CodecGzip, MinSize: 0})
	if _, ok := p.TryDecompress("%%% not base64 %%%", protocol.CodecGzip); ok {
		t.Fatalf("accepted invalid base64")
	}
	if _, ok := p.TryDecompress("aGVsbG8=", protocol.CodecNone); ok {
		t.Fatalf("decompressed with codec none")
	}
	// valid base64, garbage stream
	if _, ok := p.TryDecompress("aGVsbG8=", protocol.CodecGzip); ok {
		t.Fatalf("decompressed garbage")
	}
}
