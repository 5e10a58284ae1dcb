package track

import "time"

// Timer is a cancellable one-shot timer handle. Cancel after firing is a
// no-op.
type Timer interface {
	Cancel()
}

// Scheduler arms one-shot timers. The tracker stores the returned handles so
// teardown can cancel everything deterministically.
type Scheduler interface {
	Once(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

// NewScheduler returns the wall-clock scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler { return clockScheduler{} }

type clockTimer struct{ t *time.Timer }

func (clockScheduler) Once(d time.Duration, fn func()) Timer {
	return clockTimer{t: time.AfterFunc(d, fn)}
}

func (c clockTimer) Cancel() { c.t.Stop() }
