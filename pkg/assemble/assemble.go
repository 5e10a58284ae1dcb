// Package assemble splits oversized payloads into chunks and puts them back
// together on the receiving side, tolerating reordering and duplication.
package assemble

import (
	"encoding/base64"
	"sync"
	"time"

	"go.uber.org/zap"

	"rdgram/pkg/protocol"
	"rdgram/pkg/transport"
)

// Chunks splits data into ceil(len/chunkSize) pieces, each base64-encoded so
// it can travel as a JSON string body.
func Chunks(data []byte, chunkSize int) []string {
	if chunkSize <= 0 || len(data) == 0 {
		return nil
	}
	total := (len(data) + chunkSize - 1) / chunkSize
	out := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, base64.StdEncoding.EncodeToString(data[start:end]))
	}
	return out
}

type assembly struct {
	slots     [][]byte // nil = not yet received
	received  int
	createdAt time.Time
	remote    transport.Remote
	codec     protocol.CodecID
}

// Reassembler collects chunks per base id until each logical message is
// complete. All methods are safe for concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	pending map[string]*assembly
	timeout time.Duration

	now func() time.Time
}

// New returns a reassembler that discards partial assemblies older than
// timeout during CleanupStale.
func New(timeout time.Duration) *Reassembler {
	return &Reassembler{
		pending: make(map[string]*assembly),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetTimeout re-keys the staleness window.
func (r *Reassembler) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Init creates the assembly for baseID if it does not exist yet. The codec
// is recorded from whichever chunk arrives first; every chunk of a message
// carries the same codec bits, so arrival order does not matter.
func (r *Reassembler) Init(baseID string, total int, remote transport.Remote, codec protocol.CodecID) {
	if total <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[baseID]; ok {
		return
	}
	r.pending[baseID] = &assembly{
		slots:     make([][]byte, total),
		createdAt: r.now(),
		remote:    remote,
		codec:     codec,
	}
}

// Add stores one base64 chunk. Duplicates and out-of-range indexes are
// dropped. complete is true only when the last missing slot was just filled.
func (r *Reassembler) Add(baseID string, index int, data string) (complete bool) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		zap.L().Warn("chunk body is not valid base64", zap.String("base_id", baseID), zap.Int("index", index), zap.Error(err))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.pending[baseID]
	if a == nil {
		return false
	}
	if index < 0 || index >= len(a.slots) {
		zap.L().Warn("chunk index out of range", zap.String("base_id", baseID), zap.Int("index", index), zap.Int("total", len(a.slots)))
		return false
	}
	if a.slots[index] != nil {
		zap.L().Debug("duplicate chunk dropped", zap.String("base_id", baseID), zap.Int("index", index))
		return false
	}
	a.slots[index] = raw
	a.received++
	return a.received == len(a.slots)
}

// Assembled returns the concatenated payload once every slot is filled, and
// removes the assembly. ok is false while any slot is still empty.
func (r *Reassembler) Assembled(baseID string) (data []byte, codec protocol.CodecID, remote transport.Remote, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.pending[baseID]
	if a == nil || a.received != len(a.slots) {
		return nil, protocol.CodecNone, transport.Remote{}, false
	}
	size := 0
	for _, s := range a.slots {
		if s == nil {
			return nil, protocol.CodecNone, transport.Remote{}, false
		}
		size += len(s)
	}
	buf := make([]byte, 0, size)
	for _, s := range a.slots {
		buf = append(buf, s...)
	}
	delete(r.pending, baseID)
	return buf, a.codec, a.remote, true
}

// CleanupStale drops assemblies older than the timeout and returns how many
// were removed. No negative acknowledgement is sent; the sender's own
// timeout covers the loss.
func (r *Reassembler) CleanupStale(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.pending {
		if now.Sub(a.createdAt) > r.timeout {
			delete(r.pending, id)
			n++
			zap.L().Debug("stale assembly discarded", zap.String("base_id", id), zap.Int("received", a.received), zap.Int("total", len(a.slots)))
		}
	}
	return n
}

// Clear drops every pending assembly.
func (r *Reassembler) Clear() {
	r.mu.Lock()
	r.pending = make(map[string]*assembly)
	r.mu.Unlock()
}

// Len reports the number of pending assemblies.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
