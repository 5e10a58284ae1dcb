package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Envelope is the unit exchanged on the wire. The serialized form is a flat
// JSON object so any compliant peer can parse it; only the flag byte is
// bit-exact. Chunk metadata and size fields are pointers because zero is a
// meaningful value for ci and must survive serialization.
type Envelope struct {
	ID       string `json:"id"`
	Body     any    `json:"body,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Flags    uint8  `json:"flags"`

	ChunkIndex *int `json:"ci,omitempty"`
	ChunkTotal *int `json:"ct,omitempty"`

	OriginalSize   *int `json:"os,omitempty"`
	CompressedSize *int `json:"cs,omitempty"`
}

// Type decodes the message type from the flag byte.
func (e *Envelope) Type() MsgType {
	t, _, _, _ := DecodeFlags(e.Flags)
	return t
}

// Codec decodes the codec index from the flag byte.
func (e *Envelope) Codec() CodecID {
	_, c, _, _ := DecodeFlags(e.Flags)
	return c
}

// Compressed reports the compressed flag bit.
func (e *Envelope) Compressed() bool {
	_, _, c, _ := DecodeFlags(e.Flags)
	return c
}

// Chunked reports the chunked flag bit.
func (e *Envelope) Chunked() bool {
	_, _, _, c := DecodeFlags(e.Flags)
	return c
}

// Marshal serializes the envelope to its wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes b as an envelope. ok is false when b is not a protocol
// datagram (not JSON, or missing id/flags); such payloads are passed through
// to the application untouched.
func Parse(b []byte) (Envelope, bool) {
	var probe struct {
		ID    *string `json:"id"`
		Flags *uint8  `json:"flags"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return Envelope{}, false
	}
	if probe.ID == nil || *probe.ID == "" || probe.Flags == nil {
		return Envelope{}, false
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, false
	}
	return e, true
}

// chunkSep joins a base id with a chunk index, as in "1234-chunk-7".
// The suffix form is part of the wire contract.
const chunkSep = "-chunk-"

// ChunkID builds the wire id for chunk i of the logical message baseID.
func ChunkID(baseID string, i int) string {
	return baseID + chunkSep + strconv.Itoa(i)
}

// SplitChunkID recovers the base id and chunk index from a chunk id.
// ok is false when id does not carry the chunk suffix.
func SplitChunkID(id string) (baseID string, index int, ok bool) {
	pos := strings.LastIndex(id, chunkSep)
	if pos < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[pos+len(chunkSep):])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:pos], n, true
}
