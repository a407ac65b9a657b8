package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lobbyisup/lobbyisup/internal/cache"
	"github.com/lobbyisup/lobbyisup/internal/watch"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// readLimit bounds client frames; clients are not expected to send data.
	readLimit = 512
)

// Event names sent to clients.
const (
	EventLobby    = "lobby"
	EventInactive = "inactive"
	EventEnded    = "ended"
)

// Messages shown for terminal events.
const (
	MsgInactive = "Lobby no longer active"
	MsgEnded    = "Lobby is no longer being watched"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Terminal is the payload of inactive and ended events.
type Terminal struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Stream serves live lobby sessions from a cache.
type Stream struct {
	cache         *cache.Cache
	sessionLength time.Duration
	refresh       time.Duration
}

// New creates a Stream. Non-positive durations select the watch package defaults.
func New(c *cache.Cache, sessionLength, refresh time.Duration) *Stream {
	return &Stream{cache: c, sessionLength: sessionLength, refresh: refresh}
}

// Serve admits a watcher for key, upgrades the connection and streams until
// the session ends. Admission errors are written as JSON with status 429.
// Blocks until the connection closes.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, key string) {
	adm := s.cache.Admission()
	h, err := adm.Register(key)
	if err != nil {
		writeErr(w, http.StatusTooManyRequests, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		adm.Unregister(key, h.ID)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	sess := &watch.Session{
		Source:      s.cache,
		Admission:   adm,
		Handle:      h,
		Renderer:    &renderer{conn: conn},
		MaxDuration: s.sessionLength,
		Refresh:     s.refresh,
	}
	outcome, err := sess.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("ws: session aborted", "key", key, "id", h.ID, "err", err)
	}
	slog.Debug("ws: session finished", "key", key, "id", h.ID, "outcome", outcome)

	if outcome != watch.OutcomeAborted {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, outcome.String())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
	}
}

// readPump discards client frames and cancels the session when the
// connection closes. Control frames are handled by the library.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(readLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// renderer writes session states to the websocket. Only the session
// goroutine calls it, so writes are never concurrent.
type renderer struct {
	conn *websocket.Conn
}

func (r *renderer) Render(_ context.Context, s lobby.Summary) error {
	return r.write(Message{Event: EventLobby, Data: s})
}

func (r *renderer) Inactive(_ context.Context, key string) error {
	return r.write(Message{Event: EventInactive, Data: Terminal{ID: key, Message: MsgInactive}})
}

func (r *renderer) Ended(_ context.Context, key string) error {
	return r.write(Message{Event: EventEnded, Data: Terminal{ID: key, Message: MsgEnded}})
}

func (r *renderer) write(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	return r.conn.WriteMessage(websocket.TextMessage, b)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}) //nolint:errcheck
}
