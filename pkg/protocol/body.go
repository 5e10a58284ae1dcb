package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Canonicalize round-trips v through JSON so that both endpoints see the same
// shape: structs become maps, integers become float64, and re-marshaling
// yields sorted object keys. It returns the normalized value together with
// its canonical serialization. The canonical bytes are what the engine
// measures, compresses and chunks.
func Canonicalize(v any) (any, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, nil, err
	}
	canon, err := json.Marshal(norm)
	if err != nil {
		return nil, nil, err
	}
	return norm, canon, nil
}

// ChecksumHex computes the SHA-256 digest of a body as it sits in the
// envelope. String bodies (base64 chunk or compressed payloads, or a plain
// string value) hash their raw text; any other value hashes its canonical
// JSON serialization. Both endpoints apply the same rule, so a digest
// computed before send matches one recomputed after parse.
func ChecksumHex(body any) string {
	var b []byte
	if s, ok := body.(string); ok {
		b = []byte(s)
	} else {
		b, _ = json.Marshal(body)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
