package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledLimiterAdmitsEverything(t *testing.T) {
	kl := New(Config{RPS: 0, Burst: 0})
	for i := 0; i < 1000; i++ {
		d := kl.Allow("caller-a")
		assert.True(t, d.Allowed)
	}
}

func TestDistinctKeysDoNotShareBudget(t *testing.T) {
	kl := New(Config{RPS: 1, Burst: 0})
	assert.True(t, kl.Allow("a").Allowed)
	assert.True(t, kl.Allow("b").Allowed)
	assert.False(t, kl.Allow("a").Allowed)
}

// TestBurstExhaustionAndRefill: 5 rps with burst 2 admits 7
// back-to-back requests, rejects the 8th with retry headers, and
// admits a fresh request again after 1.2s.
func TestBurstExhaustionAndRefill(t *testing.T) {
	kl := New(Config{RPS: 5, Burst: 2})

	admitted := 0
	var rejected Decision
	var sawRejection bool
	for i := 0; i < 8; i++ {
		d := kl.Allow("10.0.0.1")
		if d.Allowed {
			admitted++
		} else if !sawRejection {
			rejected = d
			sawRejection = true
		}
	}

	assert.Equal(t, 7, admitted)
	assert.True(t, sawRejection)
	assert.EqualValues(t, 5, rejected.Limit)
	assert.Equal(t, 0, rejected.Remaining)
	assert.True(t, rejected.RetryAfter >= time.Second)

	time.Sleep(1200 * time.Millisecond)
	assert.True(t, kl.Allow("10.0.0.1").Allowed)
}

// TestLimiterBound: over a window of T seconds, admitted requests
// for a single key are bounded by the sustained rate plus the bucket's
// full starting capacity (rps + burst).
func TestLimiterBound(t *testing.T) {
	const rps = 10.0
	const burst = 4
	kl := New(Config{RPS: rps, Burst: burst})

	start := time.Now()
	window := 500 * time.Millisecond
	admitted := 0
	for time.Since(start) < window {
		if kl.Allow("caller").Allowed {
			admitted++
		}
	}
	elapsed := time.Since(start).Seconds()
	bound := rps*elapsed + rps + burst + 1 // +1 slack for the loop's own timing jitter
	assert.True(t, float64(admitted) <= bound, "admitted=%d exceeded bound=%f", admitted, bound)
}

// TestPeekDoesNotConsumeQuota exercises the auth-failure limiter's
// pre-comparison gate contract: repeated Peek calls must report
// availability without depleting the bucket, so a string of successful
// credential checks never exhausts it.
func TestPeekDoesNotConsumeQuota(t *testing.T) {
	kl := New(Config{RPS: 1, Burst: 0})

	for i := 0; i < 10; i++ {
		d := kl.Peek("caller-a")
		assert.True(t, d.Allowed)
	}

	// A real Allow still sees the untouched capacity of 1.
	assert.True(t, kl.Allow("caller-a").Allowed)
	assert.False(t, kl.Allow("caller-a").Allowed)
}

// TestPeekReflectsExhaustion ensures Peek still reports exhaustion
// once Allow has actually drained the bucket, so the quota-exhaustion
// gate rejects before any credential comparison runs.
func TestPeekReflectsExhaustion(t *testing.T) {
	kl := New(Config{RPS: 1, Burst: 0})

	assert.True(t, kl.Allow("caller-a").Allowed)
	d := kl.Peek("caller-a")
	assert.False(t, d.Allowed)
	assert.True(t, d.RetryAfter > 0)
}

func TestSweepIdleEvictsOldBuckets(t *testing.T) {
	kl := New(Config{RPS: 5, Burst: 2})
	kl.Allow("stale-key")
	evicted := kl.SweepIdle(-time.Second) // "older than now+1s" matches everything
	assert.Equal(t, 1, evicted)
}
