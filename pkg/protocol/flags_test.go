package protocol

import "testing"

func TestFlagsRoundtrip(t *testing.T) {
	types := []MsgType{MsgReq, MsgAck, MsgRes}
	codecs := []CodecID{CodecNone, CodecGzip, CodecSnappy, CodecLZ4, CodecZstd}
	bools := []bool{false, true}
	for _, mt := range types {
		for _, c := range codecs {
			for _, comp := range bools {
				for _, chk := range bools {
					b := EncodeFlags(mt, c, comp, chk)
					if b&reservedBit != 0 {
						t.Fatalf("reserved bit set for %v/%v", mt, c)
					}
					mt2, c2, comp2, chk2 := DecodeFlags(b)
					if mt2 != mt || c2 != c || comp2 != comp || chk2 != chk {
						t.Fatalf("roundtrip mismatch: %v,%v,%v,%v -> 0x%02x -> %v,%v,%v,%v",
							mt, c, comp, chk, b, mt2, c2, comp2, chk2)
					}
				}
			}
		}
	}
}

func TestDecodeFlagsIgnoresReservedBit(t *testing.T) {
	b := EncodeFlags(MsgRes, CodecZstd, true, false) | reservedBit
	mt, c, comp, chk := DecodeFlags(b)
	if mt != MsgRes || c != CodecZstd || !comp || chk {
		t.Fatalf("reserved bit leaked into decode: %v %v %v %v", mt, c, comp, chk)
	}
}

func TestFlagByteLayout(t *testing.T) {
	// ACK, gzip, compressed, chunked: 0b001_1_1_001 = 0x39
	if b := EncodeFlags(MsgAck, CodecGzip, true, true); b != 0x39 {
		t.Fatalf("flag byte = 0x%02x, want 0x39", b)
	}
	if b := EncodeFlags(MsgReq, CodecNone, false, false); b != 0 {
		t.Fatalf("zero flags = 0x%02x", b)
	}
}
