package compress

import "github.com/golang/snappy"

type snappyCodec struct{}

// Snappy returns the snappy block-format codec.
func Snappy() Codec { return snappyCodec{} }

func (snappyCodec) Name() string    { return "snappy" }
func (snappyCodec) Available() bool { return true }

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decompress(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}
