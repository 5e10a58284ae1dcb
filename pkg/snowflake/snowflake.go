// Package snowflake generates monotonically increasing, process-unique
// message ids: a 64-bit value packing an epoch-relative millisecond
// timestamp, a worker id and a per-millisecond sequence.
package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Epoch is the custom epoch (2024-01-01T00:00:00Z) in Unix milliseconds.
const Epoch int64 = 1704067200000

const (
	workerBits   = 10
	sequenceBits = 12

	maxWorkerID = (1 << workerBits) - 1   // 1023
	maxSequence = (1 << sequenceBits) - 1 // 4095

	workerShift    = sequenceBits
	timestampShift = workerBits + sequenceBits
)

// ErrClockBackwards is returned by Generate when the wall clock moved behind
// the last observed timestamp. The generator instance is unusable until the
// clock catches up.
var ErrClockBackwards = errors.New("snowflake: clock moved backwards")

// Generator produces ids. Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	last     int64 // last issued timestamp, ms since Epoch basis (unix ms)
	seq      int64

	now func() int64 // unix ms, swappable in tests
}

// New validates workerID and returns a generator.
func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("snowflake: worker id %d out of range [0, %d]", workerID, maxWorkerID)
	}
	return &Generator{
		workerID: workerID,
		last:     -1,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate returns the next id as a decimal string. Within one millisecond
// up to 4096 ids are issued; when the sequence wraps the call busy-waits
// until the clock advances.
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.last {
		return "", fmt.Errorf("%w: now=%d last=%d", ErrClockBackwards, ts, g.last)
	}
	if ts == g.last {
		g.seq = (g.seq + 1) & maxSequence
		if g.seq == 0 {
			for ts <= g.last {
				ts = g.now()
			}
		}
	} else {
		g.seq = 0
	}
	g.last = ts

	id := ((ts - Epoch) << timestampShift) | (g.workerID << workerShift) | g.seq
	return strconv.FormatInt(id, 10), nil
}

// Parts is the decomposition of an id, for diagnostics.
type Parts struct {
	Timestamp time.Time
	WorkerID  int64
	Sequence  int64
}

// Parse is the inverse of Generate.
func Parse(id string) (Parts, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("snowflake: bad id %q: %w", id, err)
	}
	return Parts{
		Timestamp: time.UnixMilli((n >> timestampShift) + Epoch),
		WorkerID:  (n >> workerShift) & maxWorkerID,
		Sequence:  n & maxSequence,
	}, nil
}
