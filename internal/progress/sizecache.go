package progress

import (
	"io"
	"log/slog"
	"math"
	"sync"
)

const (
	// MinPlausibleSize is the smallest live total accepted as a real size
	MinPlausibleSize = 1024
	// MaxDrift is the relative difference between a live total and the
	// pre-fetched size that is reported as unreliable metadata
	MaxDrift = 0.5
)

type sizeKey struct {
	kind Kind
	task uint64
}

// SizeCache holds authoritative and observed total sizes per (kind, task).
// Begin starts a new task and discards everything recorded for older ones.
type SizeCache struct {
	mu         sync.Mutex
	task       uint64
	prefetched map[sizeKey]int64
	cached     map[sizeKey]int64
	logger     *slog.Logger
}

// NewSizeCache creates an empty size cache
func NewSizeCache(logger *slog.Logger) *SizeCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SizeCache{
		prefetched: make(map[sizeKey]int64),
		cached:     make(map[sizeKey]int64),
		logger:     logger,
	}
}

// Begin clears the cache and returns a new task id
func (c *SizeCache) Begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.task++
	clear(c.prefetched)
	clear(c.cached)

	return c.task
}

// Current returns the id of the task started by the last Begin call
func (c *SizeCache) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task
}

// SetPrefetched records the size known before the transfer started.
// Sizes for tasks other than the current one are ignored.
func (c *SizeCache) SetPrefetched(task uint64, kind Kind, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task != c.task || size <= 0 {
		return
	}
	c.prefetched[sizeKey{kind, task}] = size
}

// Prefetched returns the pre-fetched size for kind, if any
func (c *SizeCache) Prefetched(task uint64, kind Kind) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, ok := c.prefetched[sizeKey{kind, task}]
	return size, ok && size > 0
}

// Resolve returns the stable total size for an event of the given kind.
// A pre-fetched size always wins over live totals, however far they drift
// from it; live totals are only consulted when nothing was pre-fetched.
func (c *SizeCache) Resolve(task uint64, kind Kind, ev Event) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task != c.task {
		return 0, false
	}

	key := sizeKey{kind, task}

	prefetched := c.prefetched[key]
	if prefetched > 0 {
		if _, ok := c.cached[key]; !ok {
			c.cached[key] = prefetched
			c.logger.Debug("using pre-fetched size", "kind", kind, "size", prefetched)
			if live := liveTotal(ev); live > 0 && drift(live, prefetched) > MaxDrift {
				c.logger.Warn("live size drifted from pre-fetched size",
					"kind", kind, "prefetched", prefetched, "live", live)
			}
		}
		return prefetched, true
	}

	if cached, ok := c.cached[key]; ok {
		if cached > 0 {
			return cached, true
		}
		delete(c.cached, key)
	}

	live := liveTotal(ev)
	if live <= 0 {
		return 0, false
	}
	if live < MinPlausibleSize {
		c.logger.Debug("rejecting implausible size", "kind", kind, "size", live)
		return 0, false
	}

	c.cached[key] = live
	return live, true
}

func liveTotal(ev Event) int64 {
	if ev.TotalBytes > 0 {
		return ev.TotalBytes
	}
	if ev.TotalBytesEstimate > 0 {
		return ev.TotalBytesEstimate
	}
	return 0
}

func drift(live, prefetched int64) float64 {
	return math.Abs(float64(live-prefetched)) / float64(prefetched)
}
