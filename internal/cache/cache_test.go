package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/metrics"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func player(name string) lobby.Player { return lobby.Player{Name: &name} }

func snapshot(ids ...string) feed.Snapshot {
	s := feed.Snapshot{Lobbies: map[string]lobby.Lobby{}}
	for _, id := range ids {
		s.Lobbies[id] = lobby.Lobby{ID: lobby.Key(id), Name: "lobby " + id, Players: []lobby.Player{player("B"), player("A")}}
	}
	return s
}

func notified(c *Cache, f feed.Frame) bool {
	sub := c.SubscribeChanges()
	defer sub.Close()
	c.Apply(f)
	select {
	case <-sub.C:
		return true
	default:
		return false
	}
}

func TestApply_SnapshotIsIdempotent(t *testing.T) {
	req := require.New(t)
	clk := &clock{t: time.Unix(1700000000, 0)}
	c := New(WithClock(clk.now))

	c.Apply(snapshot("42", "43"))
	first := c.store.List()
	c.Apply(snapshot("42", "43"))

	req.Equal(first, c.store.List())
}

func TestApply_SnapshotReplacesEverything(t *testing.T) {
	req := require.New(t)
	c := New()
	c.Apply(snapshot("1", "2"))

	req.True(notified(c, snapshot("3")))

	_, ok := c.Lookup("1")
	req.False(ok)
	l, ok := c.Lookup("3")
	req.True(ok)
	req.Equal([]string{"A", "B"}, lobby.Summarize("3", l).Players)
}

func TestApply_EmptySnapshotResetsAndNotifies(t *testing.T) {
	req := require.New(t)
	c := New()
	c.Apply(snapshot("1"))

	req.True(notified(c, feed.Snapshot{}))
	req.Zero(c.Len())
}

func TestApply_Incremental(t *testing.T) {
	req := require.New(t)
	c := New()
	c.Apply(snapshot("1", "2"))

	req.True(notified(c, feed.Incremental{
		Updated: map[string]lobby.Lobby{"3": {ID: "3"}},
		Deleted: []string{"1"},
	}))

	_, ok := c.Lookup("1")
	req.False(ok)
	_, ok = c.Lookup("2")
	req.True(ok)
	_, ok = c.Lookup("3")
	req.True(ok)
}

func TestApply_EmptyIncrementalDoesNotNotify(t *testing.T) {
	req := require.New(t)
	c := New()
	c.Apply(snapshot("1"))

	req.False(notified(c, feed.Incremental{}))
	_, ok := c.LastUpdateTime()
	req.True(ok)
}

func TestApply_PingAndUnrecognizedChangeNothing(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	c := New(WithMetrics(metrics.New(metrics.WithRegistry(reg))))

	req.False(notified(c, feed.Ping{Data: []byte("1")}))
	req.False(notified(c, feed.Unrecognized{Err: &feed.ParseError{Raw: "{{"}}))

	_, ok := c.LastUpdateTime()
	req.False(ok, "pings and bad frames do not count as updates")
	req.Zero(c.Len())
}

func TestApply_SweepsExpiredWithoutDelete(t *testing.T) {
	req := require.New(t)
	clk := &clock{t: time.Unix(1700000000, 0)}
	c := New(WithClock(clk.now), WithTTL(120*time.Second))

	c.Apply(feed.Incremental{Updated: map[string]lobby.Lobby{"old": {ID: "old"}}})
	clk.advance(121 * time.Second)

	// An unrelated delta triggers the sweep.
	req.True(notified(c, feed.Incremental{Updated: map[string]lobby.Lobby{"new": {ID: "new"}}}))

	_, ok := c.Lookup("old")
	req.False(ok)
	_, ok = c.Lookup("new")
	req.True(ok)
}

func TestStale(t *testing.T) {
	req := require.New(t)
	clk := &clock{t: time.Unix(1700000000, 0)}
	c := New(WithClock(clk.now))

	req.True(c.Stale(), "never updated is stale")

	c.Apply(snapshot("1"))
	req.False(c.Stale())

	clk.advance(DefaultStaleAfter)
	req.False(c.Stale())
	clk.advance(time.Second)
	req.True(c.Stale())

	got, ok := c.LastUpdateTime()
	req.True(ok)
	req.Equal(time.Unix(1700000000, 0).UnixNano(), got.UnixNano())
}

func TestSummaries_OrderedByID(t *testing.T) {
	c := New()
	c.Apply(snapshot("100", "9", "11"))

	ids := []string{}
	for _, s := range c.Summaries() {
		ids = append(ids, s.ID)
	}
	require.Equal(t, []string{"9", "11", "100"}, ids)
}

func TestAdmission_DefaultTable(t *testing.T) {
	req := require.New(t)
	c := New()
	h, err := c.Admission().Register("42")
	req.NoError(err)
	req.Equal([]string{"42"}, c.Admission().Keys())
	c.Admission().Unregister("42", h.ID)
	req.Empty(c.Admission().Keys())
}

func TestClose_ClosesSubscriptions(t *testing.T) {
	c := New()
	sub := c.SubscribeChanges()
	c.Close()
	_, ok := <-sub.C
	require.False(t, ok)
}
