package protocol

// Flag byte layout, low bit first:
//
//	bits 0..2  codec index (0=none 1=gzip 2=snappy 3=lz4 4=zstd)
//	bit  3     compressed
//	bit  4     chunked
//	bits 5..6  message type (0=REQ 1=ACK 2=RES)
//	bit  7     reserved, must be zero on send and ignored on receive
const (
	codecMask      = 0b0000_0111
	compressedBit  = 1 << 3
	chunkedBit     = 1 << 4
	typeShift      = 5
	typeMask       = 0b0110_0000
	reservedBit    = 1 << 7
)

// MsgType is the envelope message type carried in flag bits 5..6.
type MsgType uint8

const (
	MsgReq MsgType = 0
	MsgAck MsgType = 1
	MsgRes MsgType = 2
)

func (t MsgType) String() string {
	switch t {
	case MsgReq:
		return "req"
	case MsgAck:
		return "ack"
	case MsgRes:
		return "res"
	default:
		return "unknown"
	}
}

// CodecID identifies a compression codec in flag bits 0..2.
type CodecID uint8

const (
	CodecNone   CodecID = 0
	CodecGzip   CodecID = 1
	CodecSnappy CodecID = 2
	CodecLZ4    CodecID = 3
	CodecZstd   CodecID = 4
)

func (c CodecID) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// EncodeFlags packs type, codec and the compressed/chunked bits into one byte.
func EncodeFlags(t MsgType, codec CodecID, compressed, chunked bool) byte {
	b := byte(codec) & codecMask
	if compressed {
		b |= compressedBit
	}
	if chunked {
		b |= chunkedBit
	}
	b |= (byte(t) << typeShift) & typeMask
	return b
}

// DecodeFlags unpacks a flag byte. The reserved bit is ignored.
func DecodeFlags(b byte) (t MsgType, codec CodecID, compressed, chunked bool) {
	t = MsgType((b & typeMask) >> typeShift)
	codec = CodecID(b & codecMask)
	compressed = b&compressedBit != 0
	chunked = b&chunkedBit != 0
	return
}
