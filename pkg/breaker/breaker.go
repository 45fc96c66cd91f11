// Package breaker implements a three-state circuit breaker that gates
// every broker operation, with the explicit Closed/Open/HalfOpen
// admission contract and metrics the operation envelope depends on.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaywire/gatewayd/pkg/logging"
)

// Phase is the circuit breaker's current state.
type Phase int

const (
	Closed Phase = iota
	Open
	HalfOpen
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit-breaker-* settings.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
}

// CircuitBreaker is a three-state fail-fast gate. Phase transitions
// are serialized under mu; timesOpened and requestsRejected are
// metrics-only counters.
type CircuitBreaker struct {
	cfg Config

	mu                  sync.Mutex
	phase               Phase
	openedAt            time.Time
	consecutiveFailures int
	consecutiveSuccess  int

	timesOpened      atomic.Uint64
	requestsRejected atomic.Uint64
}

// New constructs a CircuitBreaker starting Closed.
func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, phase: Closed}
}

// Allow performs the admission check. It reports whether the caller
// may proceed and the phase the decision was made under. An
// Open breaker whose opened_at has aged past open_duration transitions
// exactly one admitted caller to HalfOpen; the guard is the same
// mutex serializing every other transition, so the race is resolved
// without a separate exclusive step.
func (b *CircuitBreaker) Allow() (bool, Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case Closed:
		return true, Closed
	case HalfOpen:
		return true, HalfOpen
	case Open:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.phase = HalfOpen
			b.consecutiveSuccess = 0
			return true, HalfOpen
		}
		b.requestsRejected.Add(1)
		return false, Open
	default:
		return false, b.phase
	}
}

// RecordSuccess applies a successful call outcome. A success observed
// while Open is an anomaly: it is logged and otherwise ignored, since
// Open only exits via the timed Allow() path above.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case Closed:
		b.consecutiveFailures = 0
	case HalfOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.cfg.SuccessThreshold {
			b.phase = Closed
			b.consecutiveFailures = 0
			b.consecutiveSuccess = 0
		}
	case Open:
		logging.Warn("success recorded while circuit open; ignoring")
	}
}

// RecordFailure applies a failed call outcome.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.open()
	case Open:
		// already open; rejected calls never reach RecordFailure, so
		// a failure landing here is from a call admitted pre-open.
	}
}

// open transitions to Open, refreshing opened_at and zeroing
// consecutive successes. Caller must hold mu.
func (b *CircuitBreaker) open() {
	b.phase = Open
	b.openedAt = time.Now()
	b.consecutiveSuccess = 0
	b.timesOpened.Add(1)
}

// Phase reports the current phase without affecting transitions.
func (b *CircuitBreaker) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Metrics is the read-only snapshot exposed to operators.
type Metrics struct {
	Phase            Phase
	TimesOpened      uint64
	RequestsRejected uint64
}

// Snapshot returns the current metrics.
func (b *CircuitBreaker) Snapshot() Metrics {
	return Metrics{
		Phase:            b.Phase(),
		TimesOpened:      b.timesOpened.Load(),
		RequestsRejected: b.requestsRejected.Load(),
	}
}
