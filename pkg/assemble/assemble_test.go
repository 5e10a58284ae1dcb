package assemble

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"rdgram/pkg/protocol"
	"rdgram/pkg/transport"
)

func TestChunksSplitAndSize(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1000)
	chunks := Chunks(data, 300)
	if len(chunks) != 4 {
		t.Fatalf("want 4 chunks, got %d", len(chunks))
	}
	var rejoined []byte
	for i, c := range chunks {
		raw, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			t.Fatalf("chunk %d not base64: %v", i, err)
		}
		if i < 3 && len(raw) != 300 {
			t.Fatalf("chunk %d size %d", i, len(raw))
		}
		rejoined = append(rejoined, raw...)
	}
	if !bytes.Equal(rejoined, data) {
		t.Fatalf("rejoined chunks differ from input")
	}
	if Chunks(nil, 300) != nil {
		t.Fatalf("chunks of empty input")
	}
	if Chunks(data, 0) != nil {
		t.Fatalf("chunks with zero size")
	}
}

func TestOutOfOrderReassembly(t *testing.T) {
	r := New(time.Minute)
	data := []byte("the quick brown fox jumps over the lazy dog")
	chunks := Chunks(data, 10)
	remote := transport.Remote{Host: "10.0.0.1", Port: 4242}
	r.Init("m1", len(chunks), remote, protocol.CodecGzip)

	order := []int{3, 0, 4, 1, 2}
	for n, i := range order {
		complete := r.Add("m1", i, chunks[i])
		if n < len(order)-1 && complete {
			t.Fatalf("complete after %d of %d chunks", n+1, len(order))
		}
		if n == len(order)-1 && !complete {
			t.Fatalf("not complete after all chunks")
		}
	}
	out, codec, from, ok := r.Assembled("m1")
	if !ok {
		t.Fatalf("assembled data unavailable")
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("reassembled %q", out)
	}
	if codec != protocol.CodecGzip || from != remote {
		t.Fatalf("metadata lost: %v %v", codec, from)
	}
	if r.Len() != 0 {
		t.Fatalf("assembly not removed after delivery")
	}
}

func TestDuplicateChunkIgnored(t *testing.T) {
	r := New(time.Minute)
	chunks := Chunks(bytes.Repeat([]byte("z"), 50), 10)
	r.Init("m2", len(chunks), transport.Remote{}, protocol.CodecNone)
	for i := 0; i < 4; i++ {
		r.Add("m2", i, chunks[i])
	}
	if r.Add("m2", 3, chunks[3]) {
		t.Fatalf("duplicate completed the assembly")
	}
	// duplicate must not have advanced the count past reality
	if !r.Add("m2", 4, chunks[4]) {
		t.Fatalf("final chunk did not complete")
	}
}

func TestAssembledNilUntilComplete(t *testing.T) {
	r := New(time.Minute)
	chunks := Chunks([]byte("0123456789"), 5)
	r.Init("m3", len(chunks), transport.Remote{}, protocol.CodecNone)
	r.Add("m3", 0, chunks[0])
	if _, _, _, ok := r.Assembled("m3"); ok {
		t.Fatalf("incomplete assembly returned data")
	}
	if _, _, _, ok := r.Assembled("missing"); ok {
		t.Fatalf("unknown id returned data")
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	r := New(time.Minute)
	r.Init("m4", 2, transport.Remote{}, protocol.CodecNone)
	if r.Add("m4", 0, "!!! not base64 !!!") {
		t.Fatalf("accepted invalid base64")
	}
	if r.Add("m4", 5, base64.StdEncoding.EncodeToString([]byte("x"))) {
		t.Fatalf("accepted out-of-range index")
	}
	if r.Add("unknown", 0, base64.StdEncoding.EncodeToString([]byte("x"))) {
		t.Fatalf("accepted chunk for unknown assembly")
	}
}

func TestCleanupStale(t *testing.T) {
	r := New(30 * time.Second)
	base := time.Unix(1000, 0)
	r.now = func() time.Time { return base }
	r.Init("old", 3, transport.Remote{}, protocol.CodecNone)
	r.now = func() time.Time { return base.Add(20 * time.Second) }
	r.Init("young", 3, transport.Remote{}, protocol.CodecNone)

	if n := r.CleanupStale(base.Add(25 * time.Second)); n != 0 {
		t.Fatalf("cleaned %d too early", n)
	}
	if n := r.CleanupStale(base.Add(40 * time.Second)); n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("pending = %d", r.Len())
	}
}
