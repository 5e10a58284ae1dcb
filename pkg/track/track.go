// Package track keeps the sender-side ledger of outstanding requests: one
// handle per in-flight REQ (single message or one chunk), with its timeout
// and retry timers.
package track

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type handle struct {
	onResolve func(any)
	onTimeout func()

	acked      bool
	retryCount int
	createdAt  time.Time

	timeoutTimer Timer
	retryTimer   Timer
}

// Tracker maps request ids to handles. Callbacks always run outside the
// tracker lock, and a handle is removed before its callback fires, so a
// callback re-entering the tracker sees consistent state.
type Tracker struct {
	mu    sync.Mutex
	m     map[string]*handle
	sched Scheduler

	now func() time.Time
}

// New builds a tracker using sched for timers.
func New(sched Scheduler) *Tracker {
	return &Tracker{m: make(map[string]*handle), sched: sched, now: time.Now}
}

// Register stores a handle for id and arms its timeout timer: when timeout
// elapses before the request resolves, the handle is removed and onTimeout
// runs. Either callback may be nil.
func (t *Tracker) Register(id string, timeout time.Duration, onResolve func(any), onTimeout func()) {
	h := &handle{onResolve: onResolve, onTimeout: onTimeout, createdAt: t.now()}
	t.mu.Lock()
	if prev, ok := t.m[id]; ok {
		cancelTimers(prev)
	}
	t.m[id] = h
	h.timeoutTimer = t.sched.Once(timeout, func() { t.expire(id, h) })
	t.mu.Unlock()
}

func (t *Tracker) expire(id string, armed *handle) {
	t.mu.Lock()
	h, ok := t.m[id]
	if !ok || h != armed {
		t.mu.Unlock()
		return
	}
	delete(t.m, id)
	cancelTimers(h)
	t.mu.Unlock()
	if h.onTimeout != nil {
		invoke(id, func() { h.onTimeout() })
	}
}

// MarkAcked flips the ack flag for id. Reports whether the id is known.
func (t *Tracker) MarkAcked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.m[id]
	if !ok {
		return false
	}
	h.acked = true
	if h.retryTimer != nil {
		h.retryTimer.Cancel()
		h.retryTimer = nil
	}
	return true
}

// Acked reports whether id is known and has seen its ACK.
func (t *Tracker) Acked(id string) (known, acked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.m[id]
	if !ok {
		return false, false
	}
	return true, h.acked
}

// SetRetryTimer replaces the retry timer for id, cancelling any previous
// one. Returns false when id is unknown (the timer is cancelled in that
// case, so the caller can fire-and-forget).
func (t *Tracker) SetRetryTimer(id string, timer Timer) bool {
	t.mu.Lock()
	h, ok := t.m[id]
	if !ok {
		t.mu.Unlock()
		if timer != nil {
			timer.Cancel()
		}
		return false
	}
	if h.retryTimer != nil {
		h.retryTimer.Cancel()
	}
	h.retryTimer = timer
	t.mu.Unlock()
	return true
}

// IncrementRetry bumps the retry counter and returns the new count, or -1
// when id is unknown.
func (t *Tracker) IncrementRetry(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.m[id]
	if !ok {
		return -1
	}
	h.retryCount++
	return h.retryCount
}

// RetryCount returns the current retry count, or -1 when id is unknown.
func (t *Tracker) RetryCount(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.m[id]
	if !ok {
		return -1
	}
	return h.retryCount
}

// InvokeAndRemove resolves id: both timers are cancelled, the handle is
// removed, and onResolve(value) runs exactly once. Returns false when id is
// unknown (already resolved, timed out, or never registered).
func (t *Tracker) InvokeAndRemove(id string, value any) bool {
	t.mu.Lock()
	h, ok := t.m[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.m, id)
	cancelTimers(h)
	t.mu.Unlock()
	if h.onResolve != nil {
		invoke(id, func() { h.onResolve(value) })
	}
	return true
}

// CleanupOld sweeps handles whose age exceeds maxAge, without invoking
// callbacks, and returns how many were removed. This is the safety net
// behind the per-request timers.
func (t *Tracker) CleanupOld(maxAge time.Duration) int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, h := range t.m {
		if now.Sub(h.createdAt) > maxAge {
			cancelTimers(h)
			delete(t.m, id)
			n++
			zap.L().Debug("stale request swept", zap.String("id", id), zap.Int("retries", h.retryCount))
		}
	}
	return n
}

// Clear removes every handle and cancels all timers. No callbacks run.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, h := range t.m {
		cancelTimers(h)
		delete(t.m, id)
	}
}

// Len reports the number of outstanding handles.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

func cancelTimers(h *handle) {
	if h.timeoutTimer != nil {
		h.timeoutTimer.Cancel()
		h.timeoutTimer = nil
	}
	if h.retryTimer != nil {
		h.retryTimer.Cancel()
		h.retryTimer = nil
	}
}

// invoke shields the tracker from panicking callbacks.
func invoke(id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("request callback panicked", zap.String("id", id), zap.Any("panic", r))
		}
	}()
	fn()
}
