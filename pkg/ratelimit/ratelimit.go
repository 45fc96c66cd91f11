// Package ratelimit implements the keyed GCRA/token-bucket admission
// control for the gateway, built on golang.org/x/time/rate. Two
// independent instances are expected to be constructed by the caller:
// a request limiter keyed by caller identity, and a separate
// auth-failure limiter consulted before credential comparison.
package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 16

// Config holds the rate-limit-* settings. RPS == 0 disables the
// limiter: every Decision it returns is Allowed. Burst is additional
// capacity above the sustained rate, so a fresh bucket admits
// RPS+Burst back-to-back requests before smoothing kicks in.
type Config struct {
	RPS   float64
	Burst int
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// KeyedLimiter is a per-identity token bucket. Buckets are created
// lazily on first use and sharded by key hash so concurrent callers
// touching different keys rarely contend; callers never need their
// own synchronization.
type KeyedLimiter struct {
	cfg    Config
	shards [shardCount]*shard
}

// New constructs a KeyedLimiter. A zero RPS yields a limiter that
// admits every request.
func New(cfg Config) *KeyedLimiter {
	kl := &KeyedLimiter{cfg: cfg}
	for i := range kl.shards {
		kl.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return kl
}

// Decision is the outcome of an admission check, carrying the values
// the 429 response headers are built from.
type Decision struct {
	Allowed    bool
	Limit      float64
	Remaining  int
	RetryAfter time.Duration
}

// Allow performs the admission check for key, reserving a token when
// admitted and computing the retry-after bound when rejected. It never
// blocks.
func (k *KeyedLimiter) Allow(key string) Decision {
	return k.check(key, true)
}

// Peek reports whether key currently has quota available without
// consuming a token. The auth-failure limiter uses this for its
// pre-comparison gate: quota exhaustion must reject the request before
// credential comparison runs, but a successful request must never
// deplete a bucket that only brute-force failures should drain.
func (k *KeyedLimiter) Peek(key string) Decision {
	return k.check(key, false)
}

// check is the shared admission path for Allow and Peek. consume
// controls whether an admitted reservation is kept (Allow) or
// released immediately (Peek), so Peek can report the same decision
// Allow would without touching the bucket's token count.
func (k *KeyedLimiter) check(key string, consume bool) Decision {
	if k.cfg.RPS <= 0 {
		return Decision{Allowed: true, Limit: 0, Remaining: math.MaxInt32}
	}

	b := k.bucketFor(key)
	now := time.Now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		// Burst < 1 cannot happen given config validation; treat as a
		// hard rejection rather than panic.
		return Decision{Allowed: false, Limit: k.cfg.RPS, RetryAfter: time.Second}
	}

	delay := r.DelayFrom(now)
	if !consume || delay > 0 {
		r.CancelAt(now)
	}
	if delay <= 0 {
		return Decision{Allowed: true, Limit: k.cfg.RPS, Remaining: int(b.limiter.TokensAt(now))}
	}

	return Decision{
		Allowed:    false,
		Limit:      k.cfg.RPS,
		Remaining:  0,
		RetryAfter: ceilSeconds(delay),
	}
}

// ceilSeconds rounds a duration up to the nearest whole second, so
// Retry-After is never an underestimate.
func ceilSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (k *KeyedLimiter) bucketFor(key string) *bucket {
	s := k.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		capacity := int(k.cfg.RPS) + k.cfg.Burst
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(k.cfg.RPS), capacity)}
		s.buckets[key] = b
	}
	b.lastUsed = time.Now()
	return b
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// SweepIdle evicts buckets untouched since the cutoff, bounding the
// keyed limiter's memory growth across a long-running process. This
// is a best-effort hygiene pass, not a correctness requirement.
func (k *KeyedLimiter) SweepIdle(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	evicted := 0
	for _, s := range k.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastUsed.Before(cutoff) {
				delete(s.buckets, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}
