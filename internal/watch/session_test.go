package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lobbyisup/lobbyisup/internal/bus"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

type fakeSource struct {
	mu   sync.Mutex
	data map[string]lobby.Lobby
	bus  *bus.Bus
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: map[string]lobby.Lobby{}, bus: bus.New()}
}

func (s *fakeSource) Lookup(key string) (lobby.Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.data[key]
	return l, ok
}

func (s *fakeSource) SubscribeChanges() *bus.Subscription { return s.bus.Subscribe() }

func (s *fakeSource) set(key string, l lobby.Lobby, notify bool) {
	s.mu.Lock()
	s.data[key] = l
	s.mu.Unlock()
	if notify {
		s.bus.Notify()
	}
}

func (s *fakeSource) remove(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	s.bus.Notify()
}

type event struct {
	kind    string
	summary lobby.Summary
}

type recorder struct {
	events    chan event
	renderErr error
}

func newRecorder() *recorder { return &recorder{events: make(chan event, 16)} }

func (r *recorder) Render(_ context.Context, s lobby.Summary) error {
	if r.renderErr != nil {
		return r.renderErr
	}
	r.events <- event{kind: "lobby", summary: s}
	return nil
}

func (r *recorder) Inactive(context.Context, string) error {
	r.events <- event{kind: "inactive"}
	return nil
}

func (r *recorder) Ended(context.Context, string) error {
	r.events <- event{kind: "ended"}
	return nil
}

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a render")
		return event{}
	}
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected render %q", e.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

type result struct {
	outcome Outcome
	err     error
}

func start(ctx context.Context, s *Session) <-chan result {
	out := make(chan result, 1)
	go func() {
		o, err := s.Run(ctx)
		out <- result{o, err}
	}()
	return out
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return result{}
	}
}

func named(name string, players ...string) lobby.Lobby {
	l := lobby.Lobby{Name: name, NumSlots: 8}
	for _, p := range players {
		p := p
		l.Players = append(l.Players, lobby.Player{Name: &p})
	}
	l.NumPlayers = int64(len(l.Players))
	return l
}

func newSession(t *testing.T, src *fakeSource, rec *recorder, key string) (*Session, *Admission) {
	t.Helper()
	a := NewAdmission()
	h, err := a.Register(key)
	require.NoError(t, err)
	return &Session{Source: src, Admission: a, Handle: h, Renderer: rec, Refresh: time.Hour}, a
}

func TestSession_IdenticalRecordsRenderOnce(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("1v1", "Alice", "Bob"), false)
	s, a := newSession(t, src, rec, "42")

	done := start(context.Background(), s)
	first := rec.next(t)
	req.Equal("lobby", first.kind)
	req.Equal([]string{"Alice", "Bob"}, first.summary.Players)

	// When the same payload arrives again
	src.set("42", named("1v1", "Alice", "Bob"), true)
	rec.quiet(t)

	// Then only a real change renders
	src.set("42", named("1v1", "Alice", "Bob", "Carol"), true)
	changed := rec.next(t)
	req.Equal("lobby", changed.kind)
	req.Equal([]string{"Alice", "Bob", "Carol"}, changed.summary.Players)
	rec.quiet(t)

	a.CancelAll()
	req.Equal("ended", rec.next(t).kind)
	res := wait(t, done)
	req.Equal(OutcomeEnded, res.outcome)
	req.NoError(res.err)
	req.Empty(a.Keys())
	req.Zero(src.bus.Subscribers())
}

func TestSession_RemovedLobbyIsGone(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("tg", "B", "A"), false)
	s, a := newSession(t, src, rec, "42")

	done := start(context.Background(), s)
	req.Equal([]string{"A", "B"}, rec.next(t).summary.Players)

	src.remove("42")

	req.Equal("inactive", rec.next(t).kind)
	res := wait(t, done)
	req.Equal(OutcomeGone, res.outcome)
	req.NoError(res.err)
	req.Zero(a.Watchers("42"))
}

func TestSession_AbsentAtStart(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	s, a := newSession(t, src, rec, "42")

	out, err := s.Run(context.Background())

	req.NoError(err)
	req.Equal(OutcomeGone, out)
	req.Equal("inactive", rec.next(t).kind)
	req.Empty(a.Keys())
}

func TestSession_DeadlineEnds(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("x"), false)
	s, _ := newSession(t, src, rec, "42")
	s.MaxDuration = 30 * time.Millisecond

	done := start(context.Background(), s)
	req.Equal("lobby", rec.next(t).kind)

	req.Equal("ended", rec.next(t).kind)
	req.Equal(OutcomeEnded, wait(t, done).outcome)
}

func TestSession_EvictedWatcherEnds(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("x"), false)
	s, a := newSession(t, src, rec, "42")
	done := start(context.Background(), s)
	req.Equal("lobby", rec.next(t).kind)

	// Three newer watchers push the session's handle out.
	for i := 0; i < DefaultMaxPerKey; i++ {
		_, err := a.Register("42")
		req.NoError(err)
	}

	req.Equal("ended", rec.next(t).kind)
	req.Equal(OutcomeEnded, wait(t, done).outcome)
	req.Equal(DefaultMaxPerKey, a.Watchers("42"))
}

func TestSession_RefreshTickWithoutNotification(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("before"), false)
	s, a := newSession(t, src, rec, "42")
	s.Refresh = 20 * time.Millisecond

	done := start(context.Background(), s)
	req.Equal("before", rec.next(t).summary.Name)

	src.set("42", named("after"), false)
	req.Equal("after", rec.next(t).summary.Name)

	a.CancelAll()
	req.Equal("ended", rec.next(t).kind)
	wait(t, done)
}

func TestSession_ContextCancelled(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	src.set("42", named("x"), false)
	s, a := newSession(t, src, rec, "42")
	ctx, cancel := context.WithCancel(context.Background())

	done := start(ctx, s)
	req.Equal("lobby", rec.next(t).kind)
	cancel()

	res := wait(t, done)
	req.Equal(OutcomeAborted, res.outcome)
	req.ErrorIs(res.err, context.Canceled)
	req.Empty(a.Keys())
}

func TestSession_RenderErrorAborts(t *testing.T) {
	req := require.New(t)
	src := newFakeSource()
	rec := newRecorder()
	rec.renderErr = errors.New("peer gone")
	src.set("42", named("x"), false)
	s, a := newSession(t, src, rec, "42")

	out, err := s.Run(context.Background())

	req.Equal(OutcomeAborted, out)
	req.ErrorIs(err, rec.renderErr)
	req.Empty(a.Keys())
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "ended", OutcomeEnded.String())
	require.Equal(t, "gone", OutcomeGone.String())
	require.Equal(t, "aborted", OutcomeAborted.String())
}
