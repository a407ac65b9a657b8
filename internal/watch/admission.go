package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lobbyisup/lobbyisup/internal/metrics"
)

// Default admission limits.
const (
	DefaultMaxKeys   = 5
	DefaultMaxPerKey = 3
)

var (
	// ErrTooManyKeys is returned when a new key would exceed MaxKeys.
	ErrTooManyKeys = errors.New("too many unique lobbies registered")
	// ErrTooManyWatchers is returned under RejectNewest when a key is full.
	ErrTooManyWatchers = errors.New("too many watchers for this lobby")
)

// Policy decides what happens when a key already holds MaxPerKey watchers.
type Policy string

const (
	// EvictOldest cancels the oldest watcher; the newest caller wins.
	EvictOldest Policy = "oldest"
	// RejectNewest refuses the new registration with ErrTooManyWatchers.
	RejectNewest Policy = "reject"
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case EvictOldest, RejectNewest:
		return p, nil
	case "":
		return EvictOldest, nil
	default:
		return "", fmt.Errorf("watch: unknown eviction policy %q: want oldest|reject", s)
	}
}

// Handle is one live watcher. Done is closed when the watcher is evicted or
// cancelled through the admission table.
type Handle struct {
	ID  uuid.UUID
	Key string

	done chan struct{}
	once sync.Once
}

func newHandle(key string) *Handle {
	return &Handle{ID: uuid.New(), Key: key, done: make(chan struct{})}
}

// Done returns the cancellation channel.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancelled reports whether Done is closed.
func (h *Handle) Cancelled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) cancel() { h.once.Do(func() { close(h.done) }) }

// Option configures an Admission.
type Option func(*Admission)

// WithLimits sets MaxKeys and MaxPerKey. Non-positive values keep the defaults.
func WithLimits(maxKeys, maxPerKey int) Option {
	return func(a *Admission) {
		if maxKeys > 0 {
			a.maxKeys = maxKeys
		}
		if maxPerKey > 0 {
			a.maxPerKey = maxPerKey
		}
	}
}

// WithPolicy sets the full-key policy.
func WithPolicy(p Policy) Option {
	return func(a *Admission) { a.policy = p }
}

// WithMetrics records admission gauges and counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Admission) { a.metrics = m }
}

// Admission is the bounded table of live watchers.
type Admission struct {
	mu     sync.Mutex
	queues map[string][]*Handle // newest first

	maxKeys   int
	maxPerKey int
	policy    Policy
	metrics   *metrics.Metrics
}

// NewAdmission returns an empty table with the default limits and EvictOldest.
func NewAdmission(opts ...Option) *Admission {
	a := &Admission{
		queues:    make(map[string][]*Handle),
		maxKeys:   DefaultMaxKeys,
		maxPerKey: DefaultMaxPerKey,
		policy:    EvictOldest,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register admits a new watcher for key.
//
// A key that is already tracked is never refused for the global key limit.
// When key holds MaxPerKey watchers the oldest is cancelled (EvictOldest) or
// the call fails with ErrTooManyWatchers (RejectNewest).
func (a *Admission) Register(key string) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, tracked := a.queues[key]
	if !tracked && len(a.queues) >= a.maxKeys {
		a.metrics.Rejection("too_many_keys")
		slog.Debug("watch: rejected, key limit reached", "key", key, "max_keys", a.maxKeys)
		return nil, ErrTooManyKeys
	}

	for len(q) >= a.maxPerKey {
		if a.policy == RejectNewest {
			a.metrics.Rejection("too_many_watchers")
			slog.Debug("watch: rejected, watcher limit reached", "key", key, "max_per_key", a.maxPerKey)
			return nil, ErrTooManyWatchers
		}
		oldest := q[len(q)-1]
		q = q[:len(q)-1]
		oldest.cancel()
		a.metrics.Eviction()
		slog.Info("watch: evicted oldest watcher", "key", key, "id", oldest.ID)
	}

	h := newHandle(key)
	a.queues[key] = append([]*Handle{h}, q...)
	a.recordLocked()
	return h, nil
}

// Unregister removes id from key's queue and drops key once its queue is
// empty. Unknown keys and ids are ignored.
func (a *Admission) Unregister(key string, id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.queues[key]
	if !ok {
		return
	}
	q = slices.DeleteFunc(q, func(h *Handle) bool { return h.ID == id })
	if len(q) == 0 {
		delete(a.queues, key)
	} else {
		a.queues[key] = q
	}
	a.recordLocked()
}

// CancelAll cancels every live watcher and returns how many were cancelled.
// Their sessions unregister themselves as they stop.
func (a *Admission) CancelAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, q := range a.queues {
		for _, h := range q {
			h.cancel()
			n++
		}
	}
	return n
}

// Keys returns the tracked keys, sorted.
func (a *Admission) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.queues))
	for k := range a.queues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Watchers returns the number of watchers registered for key.
func (a *Admission) Watchers(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queues[key])
}

// Total returns the number of watchers across all keys.
func (a *Admission) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalLocked()
}

func (a *Admission) totalLocked() int {
	n := 0
	for _, q := range a.queues {
		n += len(q)
	}
	return n
}

func (a *Admission) recordLocked() {
	a.metrics.Admission(len(a.queues), a.totalLocked())
}
