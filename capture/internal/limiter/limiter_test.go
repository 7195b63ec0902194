package limiter

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_RejectsZeroCapacity(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for capacity 0")
	}
}

func TestSubmit_RunsAndReturnsResult(t *testing.T) {
	l, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := l.Submit(func() error { return nil })
	if err := h.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestSubmit_ErrorSurfacedOnHandleOnly(t *testing.T) {
	l, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	boom := errors.New("boom")
	h1 := l.Submit(func() error { return boom })
	h2 := l.Submit(func() error { return nil })

	if err := h1.Wait(); err != boom {
		t.Errorf("expected boom, got %v", err)
	}
	if err := h2.Wait(); err != nil {
		t.Errorf("second task must not be affected by first task's error, got %v", err)
	}
}

func TestRunning_NeverExceedsCapacity(t *testing.T) {
	const n = 3
	l, err := New(n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var maxObserved int32
	release := make(chan struct{})
	for i := 0; i < n*4; i++ {
		l.Submit(func() error {
			for {
				cur := atomic.LoadInt32(&maxObserved)
				r := int32(l.Running())
				if r <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, r) {
					break
				}
			}
			<-release
			return nil
		})
	}

	// Let all workers reach their wait point before checking the bound.
	time.Sleep(50 * time.Millisecond)
	if r := l.Running(); r > n {
		t.Errorf("running() = %d, want <= %d", r, n)
	}
	close(release)
	l.Drain()

	if maxObserved > n {
		t.Errorf("observed running() = %d at some point, want <= %d", maxObserved, n)
	}
}

func TestDrain_WaitsForAllTasks(t *testing.T) {
	l, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var done int32
	for i := 0; i < 5; i++ {
		l.Submit(func() error {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		})
	}
	l.Drain()
	if atomic.LoadInt32(&done) != 5 {
		t.Errorf("expected all 5 tasks done after Drain, got %d", done)
	}
}
