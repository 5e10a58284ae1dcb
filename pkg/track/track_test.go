package track

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveFiresOnce(t *testing.T) {
	tr := New(NewScheduler())
	var resolved atomic.Int32
	var got atomic.Value
	tr.Register("r1", time.Minute, func(v any) { resolved.Add(1); got.Store(v) }, nil)

	if !tr.InvokeAndRemove("r1", "value") {
		t.Fatalf("resolve reported unknown id")
	}
	if tr.InvokeAndRemove("r1", "again") {
		t.Fatalf("second resolve succeeded")
	}
	if resolved.Load() != 1 || got.Load() != "value" {
		t.Fatalf("callback ran %d times, got %v", resolved.Load(), got.Load())
	}
	if tr.Len() != 0 {
		t.Fatalf("handle not removed")
	}
}

func TestTimeoutRemovesAndFires(t *testing.T) {
	tr := New(NewScheduler())
	timedOut := make(chan struct{})
	tr.Register("r2", 20*time.Millisecond, func(any) { t.Error("resolve after timeout") }, func() { close(timedOut) })

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatalf("timeout never fired")
	}
	if tr.InvokeAndRemove("r2", nil) {
		t.Fatalf("handle survived its timeout")
	}
}

func TestResolveCancelsTimeout(t *testing.T) {
	tr := New(NewScheduler())
	tr.Register("r3", 20*time.Millisecond, nil, func() { t.Error("timeout after resolve") })
	tr.InvokeAndRemove("r3", nil)
	time.Sleep(60 * time.Millisecond)
}

func TestMarkAckedCancelsRetryTimer(t *testing.T) {
	tr := New(NewScheduler())
	tr.Register("r4", time.Minute, nil, nil)
	fired := make(chan struct{}, 1)
	timer := NewScheduler().Once(20*time.Millisecond, func() { fired <- struct{}{} })
	if !tr.SetRetryTimer("r4", timer) {
		t.Fatalf("set retry timer failed")
	}
	if !tr.MarkAcked("r4") {
		t.Fatalf("mark acked failed")
	}
	if known, acked := tr.Acked("r4"); !known || !acked {
		t.Fatalf("ack state lost")
	}
	select {
	case <-fired:
		t.Fatalf("retry timer fired after ack")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSetRetryTimerUnknownID(t *testing.T) {
	tr := New(NewScheduler())
	fired := make(chan struct{}, 1)
	timer := NewScheduler().Once(10*time.Millisecond, func() { fired <- struct{}{} })
	if tr.SetRetryTimer("ghost", timer) {
		t.Fatalf("retry timer accepted for unknown id")
	}
	select {
	case <-fired:
		t.Fatalf("orphan timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIncrementRetry(t *testing.T) {
	tr := New(NewScheduler())
	tr.Register("r5", time.Minute, nil, nil)
	if n := tr.IncrementRetry("r5"); n != 1 {
		t.Fatalf("first increment = %d", n)
	}
	if n := tr.IncrementRetry("r5"); n != 2 {
		t.Fatalf("second increment = %d", n)
	}
	if n := tr.IncrementRetry("ghost"); n != -1 {
		t.Fatalf("unknown id increment = %d", n)
	}
}

func TestCleanupOld(t *testing.T) {
	tr := New(NewScheduler())
	base := time.Unix(5000, 0)
	tr.now = func() time.Time { return base }
	tr.Register("old", time.Hour, nil, nil)
	tr.now = func() time.Time { return base.Add(50 * time.Second) }
	tr.Register("young", time.Hour, nil, nil)

	tr.now = func() time.Time { return base.Add(70 * time.Second) }
	if n := tr.CleanupOld(time.Minute); n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	if tr.Len() != 1 {
		t.Fatalf("outstanding = %d", tr.Len())
	}
}

func TestClearInvokesNothing(t *testing.T) {
	tr := New(NewScheduler())
	tr.Register("a", 20*time.Millisecond, func(any) { t.Error("resolve during clear") }, func() { t.Error("timeout after clear") })
	tr.Register("b", 20*time.Millisecond, nil, func() { t.Error("timeout after clear") })
	tr.Clear()
	if tr.Len() != 0 {
		t.Fatalf("handles survive clear")
	}
	time.Sleep(60 * time.Millisecond)
}

func TestCallbackPanicIsContained(t *testing.T) {
	tr := New(NewScheduler())
	tr.Register("p", time.Minute, func(any) { panic("boom") }, nil)
	if !tr.InvokeAndRemove("p", nil) {
		t.Fatalf("resolve failed")
	}
	// tracker must remain usable
	tr.Register("q", time.Minute, nil, nil)
	if tr.Len() != 1 {
		t.Fatalf("tracker broken after panic")
	}
}
