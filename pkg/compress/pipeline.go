package compress

import (
	"encoding/base64"
	"errors"

	"go.uber.org/zap"

	"rdgram/pkg/protocol"
)

// ErrUnavailable reports a codec id with no usable implementation.
var ErrUnavailable = errors.New("compress: codec unavailable")

// Options control the compression decision. Zero values mean "never
// compress".
type Options struct {
	Enabled         bool
	Codec           protocol.CodecID
	Level           int
	MinSize         int     // bodies below this many bytes stay uncompressed
	MinReductionPct float64 // achieved reduction below this percentage is discarded
}

// Result is a successful compression outcome. Data is base64 so the
// compressed bytes can ride inside the textual envelope body; Raw holds the
// same bytes unencoded for callers that re-encode per chunk.
type Result struct {
	Data           string
	Raw            []byte
	Codec          protocol.CodecID
	OriginalSize   int
	CompressedSize int
}

// Pipeline decides whether to compress and performs the work.
type Pipeline struct {
	reg  *Registry
	opts Options
}

// NewPipeline builds a pipeline with its own registry tuned to opts.Level.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{reg: NewRegistry(opts.Level), opts: opts}
}

// Reconfigure swaps the options in place. The registry is rebuilt when the
// level changed.
func (p *Pipeline) Reconfigure(opts Options) {
	if opts.Level != p.opts.Level {
		p.reg = NewRegistry(opts.Level)
	}
	p.opts = opts
}

// ShouldCompress reports whether a body of size bytes is a candidate.
func (p *Pipeline) ShouldCompress(size int) bool {
	return p.opts.Enabled && size >= p.opts.MinSize
}

// TryCompress compresses payload and returns nil whenever the result should
// not be used: compression disabled, body too small, codec unavailable,
// compression error, or the achieved reduction below the configured floor.
func (p *Pipeline) TryCompress(payload []byte) *Result {
	if !p.ShouldCompress(len(payload)) {
		return nil
	}
	c := p.reg.Get(p.opts.Codec)
	if c == nil {
		zap.L().Debug("compression codec unavailable", zap.String("codec", p.opts.Codec.String()))
		return nil
	}
	out, err := c.Compress(payload)
	if err != nil {
		zap.L().Warn("compression failed", zap.String("codec", c.Name()), zap.Error(err))
		return nil
	}
	reduction := (1 - float64(len(out))/float64(len(payload))) * 100
	if reduction < p.opts.MinReductionPct {
		return nil
	}
	return &Result{
		Data:           base64.StdEncoding.EncodeToString(out),
		Raw:            out,
		Codec:          p.opts.Codec,
		OriginalSize:   len(payload),
		CompressedSize: len(out),
	}
}

// DecompressBytes expands raw compressed bytes with the given codec. ok is
// false on failure or when the codec is unavailable.
func (p *Pipeline) DecompressBytes(raw []byte, codec protocol.CodecID) ([]byte, bool) {
	c := p.reg.Get(codec)
	if c == nil {
		zap.L().Error("cannot decompress message", zap.String("codec", codec.String()), zap.Error(ErrUnavailable))
		return nil, false
	}
	out, err := c.Decompress(raw)
	if err != nil {
		zap.L().Warn("decompression failed", zap.String("codec", c.Name()), zap.Error(err))
		return nil, false
	}
	return out, true
}

// TryDecompress reverses TryCompress: base64-decode then expand with the
// codec recorded on the wire. ok is false on any failure, including an
// unavailable codec.
func (p *Pipeline) TryDecompress(data string, codec protocol.CodecID) ([]byte, bool) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		zap.L().Warn("compressed body is not valid base64", zap.Error(err))
		return nil, false
	}
	return p.DecompressBytes(raw, codec)
}
