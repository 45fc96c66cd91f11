package envelope

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire/gatewayd/pkg/breaker"
	"github.com/relaywire/gatewayd/pkg/connstate"
	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/reconnect"
)

func newEnvelope(t *testing.T, timeout time.Duration, dial reconnect.Dial) (*Envelope, *connstate.ConnectionState, *breaker.CircuitBreaker) {
	t.Helper()
	state := connstate.New()
	state.SetConnected(true)
	cb := breaker.New(breaker.Config{FailureThreshold: 3, SuccessThreshold: 2, OpenDuration: 50 * time.Millisecond})
	var installed any
	rc := reconnect.New(reconnect.Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3}, state, dial, func(c any) { installed = c }, logging.NewTestSafeLogger())
	_ = installed
	return New(cb, state, rc, timeout, logging.NewTestSafeLogger()), state, cb
}

func TestRunSuccessRecordsBreakerSuccess(t *testing.T) {
	e, _, cb := newEnvelope(t, 50*time.Millisecond, nil)
	v, err := Run(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, breaker.Closed, cb.Phase())
}

func TestRunGateRejectsWhenCircuitOpen(t *testing.T) {
	e, _, cb := newEnvelope(t, 50*time.Millisecond, nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, breaker.Open, cb.Phase())

	var calls atomic.Int64
	_, err := Run(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.CircuitOpen, ge.Code)
	assert.EqualValues(t, 0, calls.Load(), "gate must reject before the closure runs")
}

// TestTimeoutVsBrokenIsConnected: a first-attempt timeout while
// connected surfaces OperationTimeout without touching the breaker.
func TestTimeoutVsBrokenIsConnected(t *testing.T) {
	e, _, cb := newEnvelope(t, 10*time.Millisecond, nil)
	_, err := Run(context.Background(), e, "poll", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.OperationTimeout, ge.Code)
	assert.Equal(t, breaker.Closed, cb.Phase())
	assert.EqualValues(t, 0, cb.Snapshot().TimesOpened)
}

// TestTimeoutVsBrokenDisconnected: a first-attempt timeout while
// disconnected is treated as connection-class and drives reconnect.
func TestTimeoutVsBrokenDisconnected(t *testing.T) {
	var dialCalls atomic.Int64
	dial := func(ctx context.Context) (any, error) {
		dialCalls.Add(1)
		return "client", nil
	}
	e, state, cb := newEnvelope(t, 10*time.Millisecond, dial)
	state.SetConnected(false)

	var calls atomic.Int64
	_, err := Run(context.Background(), e, "poll", func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 9, nil
	})
	require.NoError(t, err, "reconnect then a successful retry attempt must clear the error")
	_ = cb
	assert.EqualValues(t, 1, dialCalls.Load())
	assert.EqualValues(t, 2, calls.Load())
}

// TestConnectionErrorTriggersReconnectAndRetriesOnce: the envelope
// invokes the closure at most twice.
func TestConnectionErrorTriggersReconnectAndRetriesOnce(t *testing.T) {
	dial := func(ctx context.Context) (any, error) { return "client", nil }
	e, _, cb := newEnvelope(t, 50*time.Millisecond, dial)

	var calls atomic.Int64
	v, err := Run(context.Background(), e, "publish", func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if n == 1 {
			return 0, gwerrors.NewConnectionFailed("broker reset", errors.New("EOF"))
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, breaker.Closed, cb.Phase())
}

func TestConnectionErrorOnRetryIsNotRetriedAgain(t *testing.T) {
	dial := func(ctx context.Context) (any, error) { return "client", nil }
	e, _, cb := newEnvelope(t, 50*time.Millisecond, dial)

	var calls atomic.Int64
	_, err := Run(context.Background(), e, "publish", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, gwerrors.NewConnectionFailed("broker reset", errors.New("EOF"))
	})
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load(), "at most one retry: two total attempts")
	assert.True(t, gwerrors.IsConnectionClass(err))
	snap := cb.Snapshot()
	assert.EqualValues(t, 0, snap.TimesOpened, "two failures recorded, below the failure-threshold of 3: breaker stays Closed")
}

func TestOperationClassFailureDoesNotTouchBreaker(t *testing.T) {
	e, _, cb := newEnvelope(t, 50*time.Millisecond, nil)
	_, err := Run(context.Background(), e, "poll", func(ctx context.Context) (int, error) {
		return 0, gwerrors.New(gwerrors.PollError, "malformed frame")
	})
	require.Error(t, err)
	assert.Equal(t, breaker.Closed, cb.Phase())
	assert.EqualValues(t, 0, cb.Snapshot().TimesOpened)
}

func TestRetryTimeoutUsesOnRetryFraming(t *testing.T) {
	dial := func(ctx context.Context) (any, error) { return "client", nil }
	e, state, _ := newEnvelope(t, 10*time.Millisecond, dial)

	calls := 0
	_, err := Run(context.Background(), e, "poll", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, gwerrors.NewConnectionFailed("reset", nil)
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on retry")
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.OperationTimeout, ge.Code)
	assert.True(t, state.IsConnected())
}
