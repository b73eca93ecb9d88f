package upstream

import (
	"context"
	"sync"
)

// DefaultConcurrency is the ceiling on simultaneous outbound requests.
const DefaultConcurrency = 4

// Limiter bounds simultaneous outbound requests process-wide. Normal
// acquisitions queue in arrival order once the ceiling is reached;
// high-priority acquisitions bypass both the queue and the ceiling. One
// instance is built at startup and injected into every client; it bounds
// physical request volume, not logical state.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	waiters  []*waiter
}

type waiter struct {
	ready chan struct{}
}

// NewLimiter creates a limiter with the given ceiling. A non-positive limit
// falls back to the default.
func NewLimiter(limit int) *Limiter {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Limiter{limit: limit}
}

// Acquire claims a slot, blocking in FIFO order while the ceiling is
// reached. Priority acquisitions never block. The context cancels a queued
// wait; a slot granted in the same instant is handed straight back.
func (l *Limiter) Acquire(ctx context.Context, priority bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if priority {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}
	if l.inFlight < l.limit && len(l.waiters) == 0 {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			l.mu.Unlock()
			l.Release()
		default:
			l.removeLocked(w)
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// Release frees a slot and wakes queued waiters up to the ceiling, oldest
// first.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	for l.inFlight < l.limit && len(l.waiters) > 0 {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.inFlight++
		close(w.ready)
	}
}

// InFlight returns the number of held slots.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// QueueLen returns the number of blocked acquirers.
func (l *Limiter) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// removeLocked must be called with the lock held.
func (l *Limiter) removeLocked(target *waiter) {
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
