package bus

import (
	"sync"
	"sync/atomic"
)

// Bus multicasts change notifications to any number of subscribers.
// The zero value is not usable; call New.
type Bus struct {
	gen atomic.Uint64

	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
	closed bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]chan struct{})}
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	C <-chan struct{}

	bus  *Bus
	id   uint64
	seen uint64
	once sync.Once
}

// Subscribe registers a new subscriber. The caller must Close the
// subscription when done. Subscribing to a closed bus returns a subscription
// whose channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	sub := &Subscription{C: ch, bus: b, seen: b.gen.Load()}
	if b.closed {
		close(ch)
		return sub
	}
	sub.id = b.nextID
	b.nextID++
	b.subs[sub.id] = ch
	return sub
}

// Notify wakes every subscriber without blocking. A subscriber that has not
// consumed its previous notification keeps a single pending one. Notify on a
// bus with no subscribers, or on a closed bus, only advances the generation.
func (b *Bus) Notify() {
	b.gen.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Generation returns the number of notifications published so far.
func (b *Bus) Generation() uint64 { return b.gen.Load() }

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription channel. Later Notify calls are no-ops for
// delivery and later Subscribe calls return closed subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[s.id]; ok {
			delete(b.subs, s.id)
			close(ch)
		}
	})
}

// Changed reports whether the bus generation moved since the last call to
// Changed (or since Subscribe) and records the current generation as seen.
// A Subscription must not call Changed from more than one goroutine.
func (s *Subscription) Changed() bool {
	g := s.bus.gen.Load()
	if g == s.seen {
		return false
	}
	s.seen = g
	return true
}

// Seen returns the generation recorded by the last call to Changed.
func (s *Subscription) Seen() uint64 { return s.seen }
