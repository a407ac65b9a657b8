package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lobbyisup/lobbyisup/internal/bus"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// Default session timings.
const (
	DefaultSessionLength = 14 * time.Minute
	DefaultRefresh       = 10 * time.Second
)

// Source is the read side of the lobby cache.
type Source interface {
	Lookup(key string) (lobby.Lobby, bool)
	SubscribeChanges() *bus.Subscription
}

// Renderer presents a session's states to its consumer.
type Renderer interface {
	// Render shows the current state of the lobby.
	Render(ctx context.Context, s lobby.Summary) error
	// Inactive shows that the lobby is no longer in the feed.
	Inactive(ctx context.Context, key string) error
	// Ended shows that the session stopped following the lobby.
	Ended(ctx context.Context, key string) error
}

// Outcome is how a session stopped.
type Outcome int

const (
	// OutcomeEnded: cancelled, evicted or deadline reached. Rendered as no longer live.
	OutcomeEnded Outcome = iota
	// OutcomeGone: the lobby left the cache. Rendered as no longer active.
	OutcomeGone
	// OutcomeAborted: context cancelled or a render failed.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnded:
		return "ended"
	case OutcomeGone:
		return "gone"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Session follows one lobby on behalf of one admitted watcher.
type Session struct {
	Source    Source
	Admission *Admission
	Handle    *Handle
	Renderer  Renderer

	// MaxDuration bounds the session from its start; activity does not extend it.
	MaxDuration time.Duration
	// Refresh forces a re-read even without change notifications.
	Refresh time.Duration
}

// Run renders the initial state and then loops until the session ends. It
// always unregisters the handle and closes its change subscription before
// returning. The error is non-nil only for OutcomeAborted.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	key := s.Handle.Key
	maxDuration := s.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultSessionLength
	}
	refresh := s.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	sub := s.Source.SubscribeChanges()
	defer sub.Close()
	if s.Admission != nil {
		defer s.Admission.Unregister(key, s.Handle.ID)
	}

	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()
	tick := time.NewTicker(refresh)
	defer tick.Stop()

	var last lobby.Summary
	rendered := false

	// check re-reads the cache. It returns done=true when the session must stop.
	check := func() (Outcome, bool, error) {
		l, ok := s.Source.Lookup(key)
		if !ok {
			if err := s.Renderer.Inactive(ctx, key); err != nil {
				return OutcomeAborted, true, fmt.Errorf("watch: render inactive: %w", err)
			}
			return OutcomeGone, true, nil
		}
		cur := lobby.Summarize(key, l)
		if rendered && cur.Equal(last) {
			return 0, false, nil
		}
		if err := s.Renderer.Render(ctx, cur); err != nil {
			return OutcomeAborted, true, fmt.Errorf("watch: render: %w", err)
		}
		last, rendered = cur, true
		return 0, false, nil
	}

	end := func() (Outcome, error) {
		if err := s.Renderer.Ended(ctx, key); err != nil {
			return OutcomeAborted, fmt.Errorf("watch: render ended: %w", err)
		}
		return OutcomeEnded, nil
	}

	if out, done, err := check(); done {
		slog.Debug("watch: session stopped", "key", key, "id", s.Handle.ID, "outcome", out)
		return out, err
	}

	for {
		select {
		case <-ctx.Done():
			return OutcomeAborted, ctx.Err()
		case <-s.Handle.Done():
			slog.Debug("watch: session cancelled", "key", key, "id", s.Handle.ID)
			return end()
		case <-deadline.C:
			slog.Debug("watch: session deadline reached", "key", key, "id", s.Handle.ID)
			return end()
		case _, ok := <-sub.C:
			if !ok {
				// Bus closed: the cache is shutting down.
				return end()
			}
		case <-tick.C:
		}
		if out, done, err := check(); done {
			slog.Debug("watch: session stopped", "key", key, "id", s.Handle.ID, "outcome", out)
			return out, err
		}
	}
}
