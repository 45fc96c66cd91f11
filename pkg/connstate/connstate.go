// Package connstate tracks whether the broker connection is up and
// coordinates concurrent callers around a single reconnect attempt.
// Every exported operation is infallible: this is pure
// bookkeeping, never I/O.
package connstate

import (
	"sync"
	"sync/atomic"
)

// ConnectionState holds the scalar connection flags shared across the
// reconnector, the operation envelope and the broker façade. All
// fields use sequentially-consistent semantics.
type ConnectionState struct {
	connected    atomic.Bool
	attempts     atomic.Uint32
	reconnecting atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

// New returns a ConnectionState starting disconnected.
func New() *ConnectionState {
	return &ConnectionState{done: make(chan struct{})}
}

// SetConnected records the current connection state. Becoming
// connected resets the attempt counter.
func (s *ConnectionState) SetConnected(connected bool) {
	s.connected.Store(connected)
	if connected {
		s.attempts.Store(0)
	}
}

// IsConnected reports the last recorded connection state.
func (s *ConnectionState) IsConnected() bool {
	return s.connected.Load()
}

// IncrementAttempts increments and returns the new attempt count.
func (s *ConnectionState) IncrementAttempts() uint32 {
	return s.attempts.Add(1)
}

// Attempts reports the current attempt count without mutating it.
func (s *ConnectionState) Attempts() uint32 {
	return s.attempts.Load()
}

// StartReconnecting is an atomic test-and-set: it reports true iff the
// calling goroutine won the race to drive the reconnect loop.
// Losers must call WaitForReconnection instead of retrying the CAS.
func (s *ConnectionState) StartReconnecting() bool {
	return s.reconnecting.CompareAndSwap(false, true)
}

// StopReconnecting clears the reconnecting flag and wakes every
// waiter registered on the current rendezvous. Must run on every exit
// path from the reconnect loop, including a panic recovery, so callers
// typically defer it immediately after a successful StartReconnecting.
func (s *ConnectionState) StopReconnecting() {
	s.mu.Lock()
	finished := s.done
	s.done = make(chan struct{})
	s.reconnecting.Store(false)
	s.mu.Unlock()

	close(finished)
}

// WaitForReconnection blocks until the in-flight reconnect cycle
// finishes, then reports IsConnected. If no cycle is in flight by the
// time registration completes, it returns immediately.
//
// Race-free by construction: the rendezvous channel is captured under
// the lock (registering this waiter) before reconnecting is
// re-checked. A winner that finishes between the caller's failed CAS
// and this registration cannot produce a missed wakeup, because
// StopReconnecting swaps in a fresh channel and clears the flag under
// the same lock before closing the old one: a waiter that captures the
// fresh channel already sees the flag cleared (or set by a newer cycle
// that will close that channel), and one that captures the old channel
// is woken by its close.
func (s *ConnectionState) WaitForReconnection() bool {
	s.mu.Lock()
	ch := s.done
	s.mu.Unlock()

	if !s.reconnecting.Load() {
		return s.IsConnected()
	}
	<-ch
	return s.IsConnected()
}
