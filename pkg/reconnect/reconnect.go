// Package reconnect implements the bounded exponential backoff
// reconnector that collapses concurrent reconnect storms into a
// single in-flight attempt via connstate.ConnectionState.
package reconnect

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/relaywire/gatewayd/pkg/connstate"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/logging"
)

const minDelay = 100 * time.Millisecond

// Config holds the reconnect-* settings.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 = unbounded
}

// Dial constructs and connects a fresh broker client, returning the
// new handle to install. It is the only broker-SDK touchpoint the
// reconnector needs; the broker façade supplies it.
type Dial func(ctx context.Context) (any, error)

// Swap installs a freshly dialed client as the connection handle the
// façade serves reads from, under its own exclusive write lock.
type Swap func(client any)

// Reconnector drives the backoff loop.
type Reconnector struct {
	cfg    Config
	state  *connstate.ConnectionState
	dial   Dial
	swap   Swap
	logger *logging.Logger
}

// New constructs a Reconnector. dial and swap are supplied by the
// broker façade, which alone owns the connection handle.
func New(cfg Config, state *connstate.ConnectionState, dial Dial, swap Swap, logger *logging.Logger) *Reconnector {
	return &Reconnector{cfg: cfg, state: state, dial: dial, swap: swap, logger: logger}
}

// Reconnect is single-flight: exactly one concurrent caller drives
// the backoff loop; every other caller waits on the rendezvous and
// returns the driver's outcome.
func (r *Reconnector) Reconnect(ctx context.Context) error {
	if !r.state.StartReconnecting() {
		if r.state.WaitForReconnection() {
			return nil
		}
		return gwerrors.New(gwerrors.ConnectionFailed, "reconnect failed on another task")
	}
	defer r.state.StopReconnecting()

	r.state.SetConnected(false)

	for {
		attempt := r.state.IncrementAttempts()
		if r.cfg.MaxAttempts > 0 && int(attempt) > r.cfg.MaxAttempts {
			return gwerrors.New(gwerrors.ConnectionFailed,
				fmt.Sprintf("Failed to reconnect after %d attempts", r.cfg.MaxAttempts))
		}

		delay := backoffDelay(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		select {
		case <-ctx.Done():
			return gwerrors.New(gwerrors.ConnectionFailed, "reconnect canceled").WithCause(ctx.Err())
		case <-time.After(delay):
		}

		client, err := r.dial(ctx)
		if err != nil {
			r.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		r.swap(client)
		r.state.SetConnected(true)
		return nil
	}
}

// backoffDelay computes base*2^(attempt-1) capped at maxDelay, adds
// uniform jitter of +-20%, and clamps the result below at 100ms.
func backoffDelay(base, maxDelay time.Duration, attempt uint32) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := float64(base) * mult
	if d > float64(maxDelay) || math.IsInf(d, 1) {
		d = float64(maxDelay)
	}

	jitter := rand.Float64()*0.4 - 0.2 // uniform in [-0.2, 0.2]
	d *= 1 + jitter

	if d < float64(minDelay) {
		d = float64(minDelay)
	}
	return time.Duration(d)
}
