package cache

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/lobbyisup/lobbyisup/internal/bus"
	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/metrics"
	"github.com/lobbyisup/lobbyisup/internal/store"
	"github.com/lobbyisup/lobbyisup/internal/watch"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// DefaultStaleAfter is how long the feed may stay silent before the cache is
// reported stale.
const DefaultStaleAfter = 60 * time.Second

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry freshness window. Non-positive selects store.DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithStaleAfter sets the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithAdmission replaces the default admission table.
func WithAdmission(a *watch.Admission) Option {
	return func(c *Cache) { c.admission = a }
}

// WithMetrics records cache metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the shared lobby state.
type Cache struct {
	store     *store.Store
	bus       *bus.Bus
	admission *watch.Admission

	ttl        time.Duration
	staleAfter time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics

	lastUpdate atomic.Int64 // unix nanoseconds; 0 until the first batch
}

// New builds an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		bus:        bus.New(),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.admission == nil {
		c.admission = watch.NewAdmission(watch.WithMetrics(c.metrics))
	}
	c.store = store.New(c.ttl, store.WithClock(c.now))
	return c
}

// Lookup returns the current record for key.
func (c *Cache) Lookup(key string) (lobby.Lobby, bool) {
	e, ok := c.store.Get(key)
	return e.Lobby, ok
}

// Entry returns the record for key together with when it was last seen.
func (c *Cache) Entry(key string) (store.Entry, bool) {
	return c.store.Get(key)
}

// Summaries returns a Summary of every cached lobby, ordered by id.
func (c *Cache) Summaries() []lobby.Summary {
	entries := c.store.List()
	out := make([]lobby.Summary, 0, len(entries))
	for key, e := range entries {
		out = append(out, lobby.Summarize(key, e.Lobby))
	}
	slices.SortFunc(out, func(a, b lobby.Summary) int {
		if len(a.ID) != len(b.ID) {
			return len(a.ID) - len(b.ID)
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of cached lobbies.
func (c *Cache) Len() int { return c.store.Count() }

// SubscribeChanges returns a subscription woken after every applied batch
// that changed something. The caller must Close it.
func (c *Cache) SubscribeChanges() *bus.Subscription { return c.bus.Subscribe() }

// Generation returns the number of change notifications published so far.
func (c *Cache) Generation() uint64 { return c.bus.Generation() }

// LastUpdateTime returns when the last snapshot or delta was applied.
func (c *Cache) LastUpdateTime() (time.Time, bool) {
	ns := c.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Stale reports whether no batch was applied within the staleness
// threshold, including when none was ever applied.
func (c *Cache) Stale() bool {
	t, ok := c.LastUpdateTime()
	if !ok {
		return true
	}
	return c.now().Sub(t) > c.staleAfter
}

// Admission returns the watch admission table.
func (c *Cache) Admission() *watch.Admission { return c.admission }

// Close wakes every subscriber with a closed channel. Apply must not be
// called afterwards.
func (c *Cache) Close() { c.bus.Close() }

// Apply applies one decoded frame and reports whether subscribers were
// notified. It must only be called from the goroutine that decodes the feed.
func (c *Cache) Apply(f feed.Frame) bool {
	c.metrics.Frame(feed.Kind(f))

	switch f := f.(type) {
	case feed.Snapshot:
		c.store.Replace(f.Lobbies)
		// A reset always notifies, even when the snapshot is empty.
		return c.finish(true)

	case feed.Incremental:
		c.store.Patch(f.Deleted, f.Updated)
		return c.finish(!f.Empty())

	case feed.Ping:
		return false

	case feed.Unrecognized:
		c.metrics.ParseError()
		slog.Warn("cache: skipping unrecognized frame", "err", f.Err)
		return false

	default:
		slog.Warn("cache: unexpected frame type", "kind", feed.Kind(f))
		return false
	}
}

// finish stamps the batch time, sweeps expired entries and notifies when
// changed is set or the sweep removed anything.
func (c *Cache) finish(changed bool) bool {
	now := c.now()
	c.lastUpdate.Store(now.UnixNano())

	expired := c.store.Sweep(now)
	if expired > 0 {
		slog.Debug("cache: swept expired lobbies", "count", expired)
	}
	c.metrics.Batch(c.store.Count(), expired, float64(now.Unix()))

	if !changed && expired == 0 {
		return false
	}
	c.bus.Notify()
	c.metrics.Notification()
	return true
}
