package spawn

import (
	"sync/atomic"
	"testing"
	"time"
)

const testTimeout = time.Second

func TestGoSpawnerRunsTask(t *testing.T) {
	done := make(chan struct{})
	GoSpawner{}.Spawn(func() { close(done) })

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for task")
	}
}

func TestBoundedSpawnerRunsAllTasks(t *testing.T) {
	s := NewBoundedSpawner(2)

	const n = 10
	var ran int64
	done := make(chan struct{})
	var remaining int64 = n

	for i := 0; i < n; i++ {
		s.Spawn(func() {
			atomic.AddInt64(&ran, 1)
			if atomic.AddInt64(&remaining, -1) == 0 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for tasks")
	}
	if got := atomic.LoadInt64(&ran); got != n {
		t.Fatalf("ran = %d, want %d", got, n)
	}
}

func TestBoundedSpawnerLimitsConcurrency(t *testing.T) {
	s := NewBoundedSpawner(1)

	const n = 5
	var inFlight int64
	var maxInFlight int64
	done := make(chan struct{})
	var remaining int64 = n

	for i := 0; i < n; i++ {
		s.Spawn(func() {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				max := atomic.LoadInt64(&maxInFlight)
				if cur <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			if atomic.AddInt64(&remaining, -1) == 0 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for tasks")
	}
	if max := atomic.LoadInt64(&maxInFlight); max > 1 {
		t.Fatalf("max in-flight = %d, want <= 1", max)
	}
}

func TestBoundedSpawnerTripsBreakerOnRepeatedPanics(t *testing.T) {
	s := NewBoundedSpawner(4, WithMaxConsecutiveFailures(2))

	s.Spawn(func() { panic("boom") })
	s.Spawn(func() { panic("boom again") })

	deadline := time.Now().Add(testTimeout)
	for gobreakerState(s) != "open" {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for breaker to open")
		}
		time.Sleep(time.Millisecond)
	}

	// The breaker should now be open; a subsequent Spawn must return
	// promptly without scheduling its task.
	ran := make(chan struct{})
	s.Spawn(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("task ran after breaker should have tripped open")
	case <-time.After(20 * time.Millisecond):
	}
}

func gobreakerState(s *BoundedSpawner) string {
	return s.breaker.State().String()
}
