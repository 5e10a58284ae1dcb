// Package compress holds the pluggable compression codecs and the decision
// pipeline that sits in front of them.
package compress

import "rdgram/pkg/protocol"

// Codec is one compression algorithm behind a uniform byte-level interface.
// Available reports whether the codec can actually run in this build; the
// registry only hands out available codecs.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
	Available() bool
}

// Registry maps codec ids to instances. Lookups for unregistered or
// unavailable codecs return nil.
type Registry struct {
	byID map[protocol.CodecID]Codec
}

// NewRegistry constructs a registry preloaded with every built-in codec.
// level applies to the codecs that support one (gzip, zstd).
func NewRegistry(level int) *Registry {
	r := &Registry{byID: make(map[protocol.CodecID]Codec)}
	r.Register(protocol.CodecGzip, Gzip(level))
	r.Register(protocol.CodecSnappy, Snappy())
	r.Register(protocol.CodecLZ4, LZ4())
	r.Register(protocol.CodecZstd, Zstd(level))
	return r
}

// Register adds a codec when it is available; unavailable codecs are dropped
// so Get never returns one.
func (r *Registry) Register(id protocol.CodecID, c Codec) {
	if c == nil || !c.Available() {
		return
	}
	r.byID[id] = c
}

// Get returns a codec by id, or nil.
func (r *Registry) Get(id protocol.CodecID) Codec { return r.byID[id] }

// Available reports whether id resolves to a usable codec.
func (r *Registry) Available(id protocol.CodecID) bool { return r.byID[id] != nil }
