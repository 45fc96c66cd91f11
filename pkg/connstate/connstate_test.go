package connstate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetConnectedResetsAttemptsOnSuccess(t *testing.T) {
	s := New()
	s.IncrementAttempts()
	s.IncrementAttempts()
	assert.Equal(t, uint32(2), s.Attempts())

	s.SetConnected(true)
	assert.True(t, s.IsConnected())
	assert.Equal(t, uint32(0), s.Attempts())
}

func TestSetConnectedFalseDoesNotTouchAttempts(t *testing.T) {
	s := New()
	s.IncrementAttempts()
	s.SetConnected(false)
	assert.False(t, s.IsConnected())
	assert.Equal(t, uint32(1), s.Attempts())
}

func TestStartReconnectingSingleWinner(t *testing.T) {
	s := New()
	assert.True(t, s.StartReconnecting())
	assert.False(t, s.StartReconnecting())
	assert.False(t, s.StartReconnecting())
}

func TestStopReconnectingAllowsNewCycle(t *testing.T) {
	s := New()
	assert.True(t, s.StartReconnecting())
	s.StopReconnecting()
	assert.True(t, s.StartReconnecting())
}

// TestWaitForReconnectionRaceFree: N concurrent losers all
// waiting on the rendezvous, every one observes the winner's outcome,
// none hang past the winner finishing.
func TestWaitForReconnectionRaceFree(t *testing.T) {
	s := New()
	assert.True(t, s.StartReconnecting())

	const waiters = 20
	var wg sync.WaitGroup
	var observedConnected atomic.Int64
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.WaitForReconnection() {
				observedConnected.Add(1)
			}
		}()
	}

	// Give the waiters time to register before the winner finishes,
	// exercising the register-before-check ordering.
	time.Sleep(20 * time.Millisecond)
	s.SetConnected(true)
	s.StopReconnecting()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters did not observe the rendezvous wakeup")
	}
	assert.EqualValues(t, waiters, observedConnected.Load())
}

func TestWaitForReconnectionNoCycleInFlightReturnsImmediately(t *testing.T) {
	s := New()
	s.SetConnected(true)

	done := make(chan bool, 1)
	go func() { done <- s.WaitForReconnection() }()

	select {
	case connected := <-done:
		assert.True(t, connected)
	case <-time.After(time.Second):
		t.Fatal("WaitForReconnection blocked with no cycle in flight")
	}
}
