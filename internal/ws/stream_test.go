package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lobbyisup/lobbyisup/internal/cache"
	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/watch"
	"github.com/lobbyisup/lobbyisup/internal/ws"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// --- helpers ----------------------------------------------------------------

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func named(name string, players ...string) lobby.Lobby {
	l := lobby.Lobby{Name: name, NumSlots: 8}
	for _, p := range players {
		p := p
		l.Players = append(l.Players, lobby.Player{Name: &p})
	}
	return l
}

// startStream serves ws.Stream at /?id=KEY and returns the ws:// base URL.
func startStream(t *testing.T, c *cache.Cache) string {
	t.Helper()
	s := ws.New(c, time.Minute, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, r.URL.Query().Get("id"))
	}))
	t.Cleanup(func() {
		c.Admission().CancelAll()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/?id="+id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var e envelope
	require.NoError(t, json.Unmarshal(msg, &e), "message: %s", msg)
	return e
}

func summary(t *testing.T, e envelope) lobby.Summary {
	t.Helper()
	var s lobby.Summary
	require.NoError(t, json.Unmarshal(e.Data, &s))
	return s
}

func cacheWith(lobbies map[string]lobby.Lobby, opts ...cache.Option) *cache.Cache {
	c := cache.New(opts...)
	c.Apply(feed.Snapshot{Lobbies: lobbies})
	return c
}

// --- tests ------------------------------------------------------------------

func TestStream_RendersThenInactive(t *testing.T) {
	req := require.New(t)
	c := cacheWith(map[string]lobby.Lobby{"42": named("1v1", "B", "A")})
	conn := dial(t, startStream(t, c), "42")

	first := read(t, conn)
	req.Equal(ws.EventLobby, first.Event)
	s := summary(t, first)
	req.Equal([]string{"A", "B"}, s.Players)
	req.Equal("https://aoe2.net/j/42", s.JoinURL)

	c.Apply(feed.Incremental{Deleted: []string{"42"}})

	last := read(t, conn)
	req.Equal(ws.EventInactive, last.Event)
	req.Contains(string(last.Data), ws.MsgInactive)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	req.Eventually(func() bool { return len(c.Admission().Keys()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStream_RendersChanges(t *testing.T) {
	req := require.New(t)
	c := cacheWith(map[string]lobby.Lobby{"42": named("before")})
	conn := dial(t, startStream(t, c), "42")
	req.Equal("before", summary(t, read(t, conn)).Name)

	c.Apply(feed.Incremental{Updated: map[string]lobby.Lobby{"42": named("after")}})

	req.Equal("after", summary(t, read(t, conn)).Name)
}

func TestStream_TooManyKeys(t *testing.T) {
	req := require.New(t)
	c := cacheWith(map[string]lobby.Lobby{"42": named("x")}, cache.WithAdmission(watch.NewAdmission(watch.WithLimits(1, 3))))
	base := startStream(t, c)
	_, err := c.Admission().Register("other")
	req.NoError(err)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/?id=42", nil)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
}

func TestStream_NewestWatcherEvictsOldest(t *testing.T) {
	req := require.New(t)
	c := cacheWith(map[string]lobby.Lobby{"42": named("x")}, cache.WithAdmission(watch.NewAdmission(watch.WithLimits(5, 1))))
	base := startStream(t, c)

	old := dial(t, base, "42")
	req.Equal(ws.EventLobby, read(t, old).Event)

	newer := dial(t, base, "42")
	req.Equal(ws.EventLobby, read(t, newer).Event)

	ended := read(t, old)
	req.Equal(ws.EventEnded, ended.Event)
	req.Contains(string(ended.Data), ws.MsgEnded)
	req.Equal(1, c.Admission().Watchers("42"))
}

func TestStream_ClientCloseUnregisters(t *testing.T) {
	req := require.New(t)
	c := cacheWith(map[string]lobby.Lobby{"42": named("x")})
	conn := dial(t, startStream(t, c), "42")
	read(t, conn)
	req.Equal(1, c.Admission().Watchers("42"))

	conn.Close()

	req.Eventually(func() bool { return c.Admission().Watchers("42") == 0 }, 2*time.Second, 5*time.Millisecond)
}
