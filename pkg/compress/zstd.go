package compress

import "github.com/klauspost/compress/zstd"

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd returns the zstd codec. level maps the generic 1..9 scale onto the
// library's speed/compression presets.
func Zstd(level int) Codec {
	opt := zstd.SpeedDefault
	switch {
	case level >= 7:
		opt = zstd.SpeedBestCompression
	case level >= 4:
		opt = zstd.SpeedBetterCompression
	case level == 1:
		opt = zstd.SpeedFastest
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(opt))
	if err != nil {
		return nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil
	}
	return &zstdCodec{enc: enc, dec: dec}
}

func (*zstdCodec) Name() string      { return "zstd" }
func (c *zstdCodec) Available() bool { return c.enc != nil && c.dec != nil }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, nil)
}
