package upstream

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/metrics"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultURL           = "wss://aoe2.net/ws"
	DefaultRetryDelay    = 5 * time.Second
	DefaultRetryJitter   = 2 * time.Second
	DefaultIdleTimeout   = 20 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultKeepAlive     = 30 * time.Second
	DefaultOutboundQueue = 32

	handshakeTimeout = 15 * time.Second
	maxFrameSize     = 32 << 20
)

// Config configures the upstream session.
type Config struct {
	URL string

	// Upgrade request headers. Host overrides the request's Host header.
	Host         string
	Origin       string
	UserAgent    string
	Subprotocols []string
	Compression  bool

	RetryDelay    time.Duration
	RetryJitter   time.Duration
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	KeepAlive     time.Duration
	OutboundQueue int
}

func (c *Config) defaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryJitter < 0 {
		c.RetryJitter = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.KeepAlive < 0 {
		c.KeepAlive = 0
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = DefaultOutboundQueue
	}
}

// Sink receives decoded frames in arrival order. cache.Cache implements it.
type Sink interface {
	Apply(f feed.Frame) bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithMetrics records connection metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithDialer replaces the websocket dialer. Subprotocols and Compression from
// Config are still applied to a copy of it.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Supervisor) { s.dialer = *d }
}

// Supervisor owns the upstream connection.
type Supervisor struct {
	cfg     Config
	decoder feed.Decoder
	sink    Sink
	metrics *metrics.Metrics
	dialer  websocket.Dialer

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	last        Disconnect
	connectedAt time.Time
}

// Disconnect describes the end of a session.
type Disconnect struct {
	Reason Reason
	Err    error
	At     time.Time
}

// New builds a Supervisor. Zero Config fields take the package defaults.
func New(cfg Config, dec feed.Decoder, sink Sink, opts ...Option) *Supervisor {
	cfg.defaults()
	s := &Supervisor{
		cfg:     cfg,
		decoder: dec,
		sink:    sink,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dialer.Subprotocols = cfg.Subprotocols
	s.dialer.EnableCompression = cfg.Compression
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Connected reports whether a session is established.
func (s *Supervisor) Connected() bool { return s.State() == Connected }

// LastDisconnect returns why and when the previous session ended. The zero
// value means no session has ended yet.
func (s *Supervisor) LastDisconnect() Disconnect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ConnectedSince returns when the current session was established.
func (s *Supervisor) ConnectedSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Connected {
		return time.Time{}, false
	}
	return s.connectedAt, true
}

// Shutdown asks Run to close the session gracefully and return. It is safe to
// call more than once and before Run.
func (s *Supervisor) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run connects and reconnects until Shutdown is called or ctx is cancelled.
// It always returns nil; transport errors are handled internally.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer s.setState(Terminated)

	for {
		if ctx.Err() != nil {
			slog.Info("upstream: stopped", "url", s.cfg.URL)
			return nil
		}

		s.setState(Connecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.setState(Disconnected)
			if ctx.Err() != nil {
				continue
			}
			wait := s.retryDelay()
			slog.Error("upstream: dial failed, will retry",
				"url", s.cfg.URL,
				"err", err,
				"retry_in", wait)
			s.sleep(ctx, wait)
			continue
		}

		slog.Info("upstream: connected", "url", s.cfg.URL)
		reason, err := s.session(ctx, conn)
		s.recordDisconnect(reason, err)

		if reason == ReasonShutdownRequested {
			continue
		}

		wait := s.retryDelay()
		slog.Warn("upstream: connection lost, will reconnect",
			"url", s.cfg.URL,
			"reason", reason,
			"err", err,
			"retry_in", wait)
		s.sleep(ctx, wait)
	}
}

func (s *Supervisor) dial(ctx context.Context) (*websocket.Conn, error) {
	s.metrics.ConnectAttempt()

	header := http.Header{}
	if s.cfg.Host != "" {
		header.Set("Host", s.cfg.Host)
	}
	if s.cfg.Origin != "" {
		header.Set("Origin", s.cfg.Origin)
	}
	if s.cfg.UserAgent != "" {
		header.Set("User-Agent", s.cfg.UserAgent)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	return conn, nil
}

// sessionEnd is reported once by whichever pump stops first.
type sessionEnd struct {
	reason Reason
	err    error
}

// session runs the reader pump, plus the writer pump for variants with
// outbound traffic, until one fails or ctx is cancelled. A close frame is
// sent on shutdown only when a writer exists.
func (s *Supervisor) session(ctx context.Context, conn *websocket.Conn) (Reason, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.connectedAt = time.Now()
	s.mu.Unlock()
	s.setState(Connected)
	s.metrics.Connected(true)

	out := make(chan feed.Control, s.cfg.OutboundQueue)
	ends := make(chan sessionEnd, 2)
	writer := s.decoder.Outbound()

	var wg sync.WaitGroup
	if writer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.writePump(sessCtx, conn, out, ends)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readPump(sessCtx, conn, out, ends)
	}()

	var end sessionEnd
	select {
	case end = <-ends:
	case <-ctx.Done():
		end = sessionEnd{reason: ReasonShutdownRequested}
	}
	cancel()

	if writer && end.reason == ReasonShutdownRequested {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			slog.Debug("upstream: close frame not sent", "err", err)
		}
	}
	conn.Close()
	wg.Wait()

	s.setState(Disconnected)
	s.metrics.Connected(false)
	return end.reason, end.err
}

// readPump decodes frames in arrival order and hands them to the sink. Ping
// echoes are queued for the writer; a full queue blocks reading.
func (s *Supervisor) readPump(ctx context.Context, conn *websocket.Conn, out chan<- feed.Control, ends chan<- sessionEnd) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) //nolint:errcheck
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})

	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) //nolint:errcheck
		_, raw, err := conn.ReadMessage()
		if err != nil {
			ends <- s.classifyRead(ctx, err)
			return
		}

		f := s.decoder.Decode(raw)
		if p, ok := f.(feed.Ping); ok && s.decoder.Outbound() {
			select {
			case out <- feed.Echo(p):
			case <-ctx.Done():
				ends <- sessionEnd{reason: ReasonShutdownRequested}
				return
			}
		}
		s.sink.Apply(f)
	}
}

func (s *Supervisor) classifyRead(ctx context.Context, err error) sessionEnd {
	if ctx.Err() != nil {
		return sessionEnd{reason: ReasonShutdownRequested}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return sessionEnd{reason: ReasonIdleTimeout, err: ErrIdleTimeout}
	}
	return sessionEnd{reason: ReasonReadError, err: &ConnectionError{Op: "read", Err: err}}
}

// writePump sends the handshake, then queued control frames and periodic
// keepalives until ctx is cancelled or a write fails.
func (s *Supervisor) writePump(ctx context.Context, conn *websocket.Conn, out <-chan feed.Control, ends chan<- sessionEnd) {
	write := func(c feed.Control) bool {
		b, err := c.Encode()
		if err != nil {
			slog.Error("upstream: encode control frame", "message", c.Message, "err", err)
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)) //nolint:errcheck
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			if ctx.Err() != nil {
				ends <- sessionEnd{reason: ReasonShutdownRequested}
			} else {
				ends <- sessionEnd{reason: ReasonWriteError, err: &ConnectionError{Op: "write", Err: err}}
			}
			return false
		}
		return true
	}

	for _, c := range s.decoder.Handshake() {
		if !write(c) {
			return
		}
	}

	var keepalive <-chan time.Time
	if s.decoder.Outbound() && s.cfg.KeepAlive > 0 {
		t := time.NewTicker(s.cfg.KeepAlive)
		defer t.Stop()
		keepalive = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-out:
			if !write(c) {
				return
			}
		case now := <-keepalive:
			if !write(feed.KeepAlive(now.Unix())) {
				return
			}
		}
	}
}

func (s *Supervisor) recordDisconnect(reason Reason, err error) {
	s.metrics.Disconnect(string(reason))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = Disconnect{Reason: reason, Err: err, At: time.Now()}
}

func (s *Supervisor) setState(st State) { s.state.Store(int32(st)) }

// retryDelay returns the fixed delay plus uniform jitter.
func (s *Supervisor) retryDelay() time.Duration {
	d := s.cfg.RetryDelay
	if s.cfg.RetryJitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.cfg.RetryJitter))) //nolint:gosec // not crypto
	}
	return d
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
