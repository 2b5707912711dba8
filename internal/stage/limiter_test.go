package stage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_BoundsInFlight(t *testing.T) {
	const limit = 3
	const units = 10

	var inFlight, peak, done int32
	var mu sync.Mutex

	limiter := NewLimiter(limit)
	started := limiter.Run(context.Background(), units, func(i int) {
		cur := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt32(&done, 1)
	})

	if started != units {
		t.Errorf("started = %d, want %d", started, units)
	}
	if done != units {
		t.Errorf("done = %d, want %d (Run must wait for all units)", done, units)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > limit {
		t.Errorf("peak in-flight = %d, want <= %d", peak, limit)
	}
}

func TestLimiter_CancelSkipsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	limiter := NewLimiter(1)
	var ran int32
	started := limiter.Run(ctx, 5, func(i int) {
		atomic.AddInt32(&ran, 1)
		if i == 0 {
			cancel()
		}
		time.Sleep(5 * time.Millisecond)
	})

	if started >= 5 {
		t.Errorf("started = %d, expected pending units to be skipped after cancel", started)
	}
	if ran != int32(started) {
		t.Errorf("ran = %d, started = %d; every started unit must settle", ran, started)
	}
}

func TestLimiter_ZeroLimit(t *testing.T) {
	// A nonsensical limit still admits one unit at a time.
	limiter := NewLimiter(0)
	var ran int32
	limiter.Run(context.Background(), 3, func(i int) {
		atomic.AddInt32(&ran, 1)
	})
	if ran != 3 {
		t.Errorf("ran = %d, want 3", ran)
	}
}
