package visnav

import (
	"sync"
)

// Latest is a single slot handoff between a producer and the control loop.
// A Put always replaces the value held, so the consumer acts on the most
// recent value rather than a backlog of stale ones.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	seq   uint64
	// notify has capacity of one so signalling never blocks the producer
	notify chan struct{}
	closed bool
}

// NewLatest returns an empty handoff slot
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		notify: make(chan struct{}, 1),
	}
}

// Put stores value, replacing any value not yet taken
func (l *Latest[T]) Put(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.value = value
	l.seq++

	select {
	case l.notify <- struct{}{}:
	default:
		// a signal is already pending
	}
}

// Snapshot returns the most recent value and its sequence number.  The
// sequence is zero until the first Put and increases by one on every Put, so
// callers can tell if a new value arrived since they last looked.
func (l *Latest[T]) Snapshot() (T, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.seq
}

// Ready returns a channel that receives after a Put
func (l *Latest[T]) Ready() <-chan struct{} {
	return l.notify
}

// Close releases any consumer waiting on Ready
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.notify)
	}
}
