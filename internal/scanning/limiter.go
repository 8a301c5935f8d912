package scanning

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of concurrent connection attempts.
// It tracks how many slots are held and the highest count observed.
type Limiter struct {
	capacity int
	sem      *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	peak     int

	onChange func(delta int)
}

// NewLimiter creates a limiter with the given capacity. Capacities below 1 are raised to 1.
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// OnChange registers a hook called with +1 on every acquire and -1 on every release.
// It must be set before the limiter is used.
func (l *Limiter) OnChange(fn func(delta int)) {
	l.onChange = fn
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	l.mu.Unlock()

	if l.onChange != nil {
		l.onChange(1)
	}
	return nil
}

// Release frees a slot previously obtained with Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	if l.inFlight == 0 {
		l.mu.Unlock()
		return
	}
	l.inFlight--
	l.mu.Unlock()

	l.sem.Release(1)
	if l.onChange != nil {
		l.onChange(-1)
	}
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Peak returns the highest number of slots held at once.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Capacity returns the maximum number of concurrent slots.
func (l *Limiter) Capacity() int {
	return l.capacity
}
