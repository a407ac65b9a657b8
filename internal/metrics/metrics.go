package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "lobbyisup"

// Config configures the collectors.
type Config struct {
	Namespace   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the registerer the collectors are added to.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Metrics holds every collector.
type Metrics struct {
	framesTotal          *prometheus.CounterVec
	parseErrorsTotal     prometheus.Counter
	connectAttemptsTotal prometheus.Counter
	disconnectsTotal     *prometheus.CounterVec
	connected            prometheus.Gauge
	notificationsTotal   prometheus.Counter
	lobbies              prometheus.Gauge
	expiredTotal         prometheus.Counter
	trackedKeys          prometheus.Gauge
	watchers             prometheus.Gauge
	rejectionsTotal      *prometheus.CounterVec
	evictionsTotal       prometheus.Counter
	lastUpdate           prometheus.Gauge
}

// New registers the collectors. It panics if a collector is already
// registered on the chosen registry, like promauto does.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: DefaultNamespace,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		}, labels)
	}

	return &Metrics{
		framesTotal:          counterVec("feed_frames_total", "Upstream frames decoded, by kind", "kind"),
		parseErrorsTotal:     counter("feed_parse_errors_total", "Upstream frames that matched no supported shape"),
		connectAttemptsTotal: counter("upstream_connect_attempts_total", "Upstream websocket dial attempts"),
		disconnectsTotal:     counterVec("upstream_disconnects_total", "Upstream sessions ended, by reason", "reason"),
		connected:            gauge("upstream_connected", "1 while an upstream session is established"),
		notificationsTotal:   counter("cache_notifications_total", "Change notifications published"),
		lobbies:              gauge("cache_lobbies", "Lobbies currently cached"),
		expiredTotal:         counter("cache_expired_total", "Lobbies dropped by the TTL sweep"),
		trackedKeys:          gauge("watch_tracked_keys", "Distinct lobbies with at least one live watcher"),
		watchers:             gauge("watch_watchers", "Live watchers across all lobbies"),
		rejectionsTotal:      counterVec("watch_rejections_total", "Watch registrations refused, by reason", "reason"),
		evictionsTotal:       counter("watch_evictions_total", "Watchers cancelled to make room for a newer one"),
		lastUpdate:           gauge("cache_last_update_timestamp_seconds", "Unix time of the last applied batch"),
	}
}

// Frame counts one decoded frame of the given kind.
func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

// ParseError counts one undecodable frame.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrorsTotal.Inc()
}

// ConnectAttempt counts one dial attempt.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttemptsTotal.Inc()
}

// Connected records the upstream connection state.
func (m *Metrics) Connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// Disconnect counts one ended session.
func (m *Metrics) Disconnect(reason string) {
	if m == nil {
		return
	}
	m.disconnectsTotal.WithLabelValues(reason).Inc()
}

// Notification counts one published change notification.
func (m *Metrics) Notification() {
	if m == nil {
		return
	}
	m.notificationsTotal.Inc()
}

// Batch records the cache size after a batch, the entries the sweep dropped
// and the batch time.
func (m *Metrics) Batch(lobbies, expired int, unix float64) {
	if m == nil {
		return
	}
	m.lobbies.Set(float64(lobbies))
	m.expiredTotal.Add(float64(expired))
	m.lastUpdate.Set(unix)
}

// Admission records the admission table size.
func (m *Metrics) Admission(keys, watchers int) {
	if m == nil {
		return
	}
	m.trackedKeys.Set(float64(keys))
	m.watchers.Set(float64(watchers))
}

// Rejection counts one refused registration.
func (m *Metrics) Rejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// Eviction counts one evicted watcher.
func (m *Metrics) Eviction() {
	if m == nil {
		return
	}
	m.evictionsTotal.Inc()
}
