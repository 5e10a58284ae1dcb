package engine

import "sync/atomic"

type statCounters struct {
	sent          atomic.Uint64
	retries       atomic.Uint64
	acked         atomic.Uint64
	timeouts      atomic.Uint64
	delivered     atomic.Uint64
	passthrough   atomic.Uint64
	checksumDrops atomic.Uint64
	codecFailures atomic.Uint64
	sendErrors    atomic.Uint64
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	Sent          uint64
	Retries       uint64
	Acked         uint64
	Timeouts      uint64
	Delivered     uint64
	Passthrough   uint64
	ChecksumDrops uint64
	CodecFailures uint64
	SendErrors    uint64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:          e.stats.sent.Load(),
		Retries:       e.stats.retries.Load(),
		Acked:         e.stats.acked.Load(),
		Timeouts:      e.stats.timeouts.Load(),
		Delivered:     e.stats.delivered.Load(),
		Passthrough:   e.stats.passthrough.Load(),
		ChecksumDrops: e.stats.checksumDrops.Load(),
		CodecFailures: e.stats.codecFailures.Load(),
		SendErrors:    e.stats.sendErrors.Load(),
	}
}
