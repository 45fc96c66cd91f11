package statscache

import (
	"context"
	"sync"
	"time"

	"github.com/relaywire/gatewayd/pkg/logging"
)

// Snapshot is the aggregate gateway statistics view. It is replaced
// atomically on each successful refresh; reads never block on a
// refresh in progress.
type Snapshot struct {
	StreamsCount   int
	TopicsCount    int
	TotalMessages  uint64
	TotalSizeBytes uint64
	LastRefresh    *time.Time
}

// Stale reports whether the snapshot should be treated as stale: an
// unset LastRefresh is unconditionally stale regardless of ttl.
func (s Snapshot) Stale(ttl time.Duration) bool {
	if s.LastRefresh == nil {
		return true
	}
	return time.Since(*s.LastRefresh) > ttl
}

// Fetcher recomputes the aggregate snapshot, typically by listing
// streams through the broker façade. Only this function and the
// snapshot cell itself are captured by the refresh task, never the
// whole application state.
type Fetcher func(ctx context.Context) (Snapshot, error)

// Cache holds the reader/writer-locked snapshot cell and drives its
// periodic refresh under a TaskSupervisor.
type Cache struct {
	mu     sync.RWMutex
	snap   Snapshot
	fetch  Fetcher
	logger *logging.Logger
}

// New constructs a Cache. Call Start to begin the background refresh.
func New(fetch Fetcher, logger *logging.Logger) *Cache {
	return &Cache{fetch: fetch, logger: logger}
}

// Get returns the most recently written snapshot without blocking.
func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Start performs one immediate refresh, then spawns the periodic
// refresh loop on sup, ticking every interval and racing the
// supervisor's cancellation first on every iteration.
func (c *Cache) Start(sup *TaskSupervisor, interval time.Duration) {
	c.refresh(sup.Context())

	sup.Go(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	})
}

// refresh fetches a new snapshot and installs it on success. Failures
// are logged; the last-good snapshot is left in place.
func (c *Cache) refresh(ctx context.Context) {
	snap, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("stats refresh failed", "error", err)
		return
	}
	now := time.Now()
	snap.LastRefresh = &now

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}
