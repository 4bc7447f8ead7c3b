package engine

import (
	"context"
	"sync"
	"time"
)

// Gate serializes all calls into the loaded engine. It admits exactly one
// holder at a time, globally. Waiters block on a size-1 channel; the Go
// runtime parks blocked senders in arrival order, which gives FIFO service
// with no starvation beyond simple queuing.
type Gate struct {
	slot    chan struct{}
	maxWait time.Duration
}

// NewGate returns a gate with the given admission timeout. maxWait <= 0
// means waiters block until the holder releases or their context ends.
func NewGate(maxWait time.Duration) *Gate {
	return &Gate{slot: make(chan struct{}, 1), maxWait: maxWait}
}

// Acquire blocks until the gate is free, the context is done, or maxWait
// elapses. On success it returns a release func to be deferred; calling it
// more than once is safe.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if g.maxWait > 0 {
		timer := time.NewTimer(g.maxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	start := time.Now()
	select {
	case g.slot <- struct{}{}:
		gateWaitSeconds.Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() { once.Do(func() { <-g.slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrBusy()
	}
}

// Held reports whether the gate currently has a holder. Intended for
// status reporting; the answer can be stale by the time it is read.
func (g *Gate) Held() bool { return len(g.slot) == 1 }
