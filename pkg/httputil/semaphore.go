package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds how many items of a batch are analyzed concurrently.
// Rule evaluation is CPU-only, but escalated items hold an outbound HTTP
// call open; without a bound a large batch of ambiguous requests would
// open one connection per item.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 32
	}
	return &Semaphore{sem: make(chan struct{}, capacity)}
}

// TryAcquire attempts to acquire a slot without blocking.
// Returns false if at capacity; use for fire-and-forget work where
// dropping is acceptable (audit writes, cache warming).
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Acquire blocks until a slot is available or the context is cancelled.
// Batch analysis uses this: every item must eventually run.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Must follow a successful Acquire/TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// DroppedCount returns the number of TryAcquire rejections.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}
