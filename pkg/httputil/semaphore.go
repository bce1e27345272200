package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds concurrent upstream operations. TrapLine uses one to cap
// in-flight oracle calls so a burst of webhooks cannot pile requests onto
// the inference provider.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 100
	}
	return &Semaphore{
		sem: make(chan struct{}, capacity),
	}
}

// TryAcquire attempts to acquire a slot without blocking. Returns false at
// capacity; use for operations where dropping is acceptable.
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
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Must be called after a successful acquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
		// Shouldn't happen - releasing without acquiring
	}
}

// DroppedCount returns operations dropped due to capacity.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}
