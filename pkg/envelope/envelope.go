// Package envelope implements the operation envelope: the uniform
// wrapper around every broker-facing call that gates on the circuit
// breaker, bounds the call by a timeout, classifies the outcome by
// error band, and retries at most once through a reconnect.
package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/relaywire/gatewayd/pkg/breaker"
	"github.com/relaywire/gatewayd/pkg/connstate"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/reconnect"
)

// Envelope wires the breaker, connection state and reconnector that
// every operation is run through. One Envelope is shared by every
// broker façade method.
type Envelope struct {
	CB          *breaker.CircuitBreaker
	State       *connstate.ConnectionState
	Reconnector *reconnect.Reconnector
	Timeout     time.Duration
	Logger      *logging.Logger
}

// New constructs an Envelope.
func New(cb *breaker.CircuitBreaker, state *connstate.ConnectionState, reconnector *reconnect.Reconnector, timeout time.Duration, logger *logging.Logger) *Envelope {
	return &Envelope{CB: cb, State: state, Reconnector: reconnector, Timeout: timeout, Logger: logger}
}

// Run executes op under the envelope contract. name is used only for
// diagnostics (timeout messages, logs); it never reaches the caller
// beyond that sanitized framing.
func Run[T any](ctx context.Context, e *Envelope, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	allowed, phase := e.CB.Allow()
	if !allowed {
		return zero, gwerrors.NewCircuitOpen(phase.String())
	}

	result, err, timedOut := attempt(ctx, e.Timeout, op)

	switch {
	case err == nil && !timedOut:
		e.CB.RecordSuccess()
		return result, nil

	case timedOut:
		// A slow call on a healthy connection is not a health signal;
		// only time out as connection-class when we know we're down.
		if e.State.IsConnected() {
			return zero, gwerrors.NewOperationTimeout(name)
		}
		e.CB.RecordFailure()
		return retryOnce(ctx, e, name, op)

	case gwerrors.IsConnectionClass(err):
		e.CB.RecordFailure()
		return retryOnce(ctx, e, name, op)

	default:
		// Operation- or caller-class: surfaced unchanged, never
		// reflected in the breaker.
		return zero, err
	}
}

// retryOnce implements the single retry path: reconnect, then run the
// operation exactly one more time. Its own outcome is classified
// identically to the first attempt except that a retry timeout is
// surfaced with "on retry" framing (the distinction matters when
// reading logs) and always counted as a breaker failure, and a
// connection error on the retry is recorded but not retried again.
func retryOnce[T any](ctx context.Context, e *Envelope, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := e.Reconnector.Reconnect(ctx); err != nil {
		return zero, err
	}

	result, err, timedOut := attempt(ctx, e.Timeout, op)
	switch {
	case err == nil && !timedOut:
		e.CB.RecordSuccess()
		return result, nil

	case timedOut:
		e.CB.RecordFailure()
		return zero, gwerrors.New(gwerrors.OperationTimeout, fmt.Sprintf("%s timed out on retry", name)).
			WithContext("operation", name)

	case gwerrors.IsConnectionClass(err):
		e.CB.RecordFailure()
		return zero, err

	default:
		return zero, err
	}
}

// attempt runs op bounded by timeout and reports whether the bound
// (not the operation's own error) is what ended the call.
func attempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error, bool) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(cctx)
	if cctx.Err() == context.DeadlineExceeded {
		return result, err, true
	}
	return result, err, false
}
