package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lobbyisup/lobbyisup/internal/cache"
	"github.com/lobbyisup/lobbyisup/internal/store"
	"github.com/lobbyisup/lobbyisup/internal/upstream"
	"github.com/lobbyisup/lobbyisup/internal/ws"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// Error messages returned by the lobby endpoints.
const (
	MsgStale       = "upstream hasn't replied in over a minute"
	MsgNotFound    = "Lobby not found"
	MsgInvalidID   = "invalid lobby id"
	MsgMethodNotOK = "method not allowed"
)

// Upstream reports the feed connection state. *upstream.Supervisor implements it.
type Upstream interface {
	State() upstream.State
	LastDisconnect() upstream.Disconnect
}

// Option configures the handler.
type Option func(*Handler)

// WithUpstream reports conn's state in the health endpoint.
func WithUpstream(conn Upstream) Option {
	return func(h *Handler) { h.upstream = conn }
}

// WithAuth wraps every lobby endpoint in mw.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.auth = mw }
}

// WithSession sets the websocket session length and refresh interval.
func WithSession(length, refresh time.Duration) Option {
	return func(h *Handler) { h.sessionLength, h.refresh = length, refresh }
}

// WithMetricsHandler mounts mh at /metrics.
func WithMetricsHandler(mh http.Handler) Option {
	return func(h *Handler) { h.metrics = mh }
}

// Handler serves the HTTP surface.
type Handler struct {
	cache    *cache.Cache
	upstream Upstream
	auth     func(http.Handler) http.Handler
	metrics  http.Handler

	sessionLength time.Duration
	refresh       time.Duration

	stream *ws.Stream
	router chi.Router
}

// New creates a Handler reading from c and registers all routes.
func New(c *cache.Cache, opts ...Option) *Handler {
	h := &Handler{cache: c}
	for _, opt := range opts {
		opt(h)
	}
	if h.auth == nil {
		h.auth = func(next http.Handler) http.Handler { return next }
	}
	h.stream = ws.New(c, h.sessionLength, h.refresh)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, MsgMethodNotOK)
	})

	r.Get("/api/v1/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/api/v1/lobbies", h.listLobbies)
		r.Get("/api/v1/lobbies/*", h.getLobby)
		r.Get("/ws/lobbies/*", h.streamLobby)
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	adm := h.cache.Admission()
	resp := HealthResponse{
		State:          "fresh",
		Upstream:       "unknown",
		LobbyCount:     h.cache.Len(),
		TrackedLobbies: len(adm.Keys()),
		Watchers:       adm.Total(),
		Generation:     h.cache.Generation(),
	}
	if h.cache.Stale() {
		resp.State = "stale"
	}
	if t, ok := h.cache.LastUpdateTime(); ok {
		resp.LastUpdate = t.UTC().Format(time.RFC3339)
	}
	if h.upstream != nil {
		resp.Upstream = h.upstream.State().String()
		resp.LastDisconnect = string(h.upstream.LastDisconnect().Reason)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listLobbies returns GET /api/v1/lobbies.
func (h *Handler) listLobbies(w http.ResponseWriter, _ *http.Request) {
	if h.cache.Stale() {
		jsonErr(w, http.StatusServiceUnavailable, MsgStale)
		return
	}
	jsonResp(w, http.StatusOK, h.cache.Summaries())
}

// getLobby returns GET /api/v1/lobbies/{id}.
func (h *Handler) getLobby(w http.ResponseWriter, r *http.Request) {
	key, e, ok := h.resolve(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, LobbyResponse{
		Summary:  lobby.Summarize(key, e.Lobby),
		LastSeen: e.LastSeen.UTC().Format(time.RFC3339),
		Record:   e.Lobby,
	})
}

// streamLobby upgrades GET /ws/lobbies/{id} to a live lobby stream.
func (h *Handler) streamLobby(w http.ResponseWriter, r *http.Request) {
	key, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.stream.Serve(w, r, key)
}

// resolve parses the lobby id from the wildcard and checks that the cache is
// fresh and holds it. It returns the entry it found, or writes the error
// response and returns false.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (string, store.Entry, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, MsgInvalidID)
		return "", store.Entry{}, false
	}
	key, err := lobby.ParseID(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, MsgInvalidID)
		return "", store.Entry{}, false
	}
	if h.cache.Stale() {
		jsonErr(w, http.StatusServiceUnavailable, MsgStale)
		return "", store.Entry{}, false
	}
	e, ok := h.cache.Entry(key)
	if !ok {
		jsonErr(w, http.StatusNotFound, MsgNotFound)
		return "", store.Entry{}, false
	}
	return key, e, true
}

// --- helpers ----------------------------------------------------------------

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
