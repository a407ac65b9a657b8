package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/watch"
	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultFeedURL       = "wss://aoe2.net/ws"
	DefaultVariant       = "tagged"
	DefaultKeepAlive     = 30 * time.Second
	DefaultRetryDelay    = 5 * time.Second
	DefaultRetryJitter   = 2 * time.Second
	DefaultIdleTimeout   = 20 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultOutboundQueue = 32

	DefaultTTL        = 120 * time.Second
	DefaultStaleAfter = 60 * time.Second

	DefaultMaxKeys       = 5
	DefaultMaxPerKey     = 3
	DefaultEviction      = "oldest"
	DefaultSessionLength = 14 * time.Minute
	DefaultRefresh       = 10 * time.Second

	DefaultHTTPPort   = 8080
	DefaultAuthHeader = "X-API-Key"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Feed  FeedConfig  `yaml:"feed"`
	Cache CacheConfig `yaml:"cache"`
	Watch WatchConfig `yaml:"watch"`
	HTTP  HTTPConfig  `yaml:"http"`
	Log   LogConfig   `yaml:"log"`
}

// FeedConfig describes the upstream websocket feed.
type FeedConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// Variant is the wire shape: tagged | untagged.
	Variant string `yaml:"variant"`

	// Subscribe lists the app ids subscribed to after connecting (tagged only).
	Subscribe []int64 `yaml:"subscribe"`

	// Location is announced after connecting (tagged only).
	Location string `yaml:"location"`

	// Upgrade request headers.
	Host         string   `yaml:"host"`
	Origin       string   `yaml:"origin"`
	UserAgent    string   `yaml:"user_agent"`
	Subprotocols []string `yaml:"subprotocols"`
	Compression  bool     `yaml:"compression"`

	KeepAlive     time.Duration `yaml:"keepalive"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RetryJitter   time.Duration `yaml:"retry_jitter"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	OutboundQueue int           `yaml:"outbound_queue"`
}

// CacheConfig controls entry expiry and staleness reporting.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// WatchConfig controls watch admission and session timing.
type WatchConfig struct {
	MaxKeys   int `yaml:"max_keys"`
	MaxPerKey int `yaml:"max_per_key"`

	// Eviction is the full-key policy: oldest | reject.
	Eviction string `yaml:"eviction"`

	SessionLength time.Duration `yaml:"session_length"`
	Refresh       time.Duration `yaml:"refresh"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Port int        `yaml:"port"`
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig configures API-key authentication of HTTP requests.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header carrying the key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel returns Level as a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:           DefaultFeedURL,
			Variant:       DefaultVariant,
			Subscribe:     []int64{lobby.AOE2DEAppID},
			Location:      lobby.AOE2DELocation,
			KeepAlive:     DefaultKeepAlive,
			RetryDelay:    DefaultRetryDelay,
			RetryJitter:   DefaultRetryJitter,
			IdleTimeout:   DefaultIdleTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			OutboundQueue: DefaultOutboundQueue,
		},
		Cache: CacheConfig{
			TTL:        DefaultTTL,
			StaleAfter: DefaultStaleAfter,
		},
		Watch: WatchConfig{
			MaxKeys:       DefaultMaxKeys,
			MaxPerKey:     DefaultMaxPerKey,
			Eviction:      DefaultEviction,
			SessionLength: DefaultSessionLength,
			Refresh:       DefaultRefresh,
		},
		HTTP: HTTPConfig{
			Port: DefaultHTTPPort,
			Auth: AuthConfig{Mode: "none", Header: DefaultAuthHeader},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	f := cfg.Feed
	if !strings.HasPrefix(f.URL, "ws://") && !strings.HasPrefix(f.URL, "wss://") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// url, got %q", f.URL)
	}
	if _, err := feed.ParseVariant(f.Variant); err != nil {
		return fmt.Errorf("feed.variant: %w", err)
	}
	if f.KeepAlive < 0 {
		return fmt.Errorf("feed.keepalive must not be negative")
	}
	if f.RetryDelay <= 0 {
		return fmt.Errorf("feed.retry_delay must be positive")
	}
	if f.RetryJitter < 0 {
		return fmt.Errorf("feed.retry_jitter must not be negative")
	}
	if f.IdleTimeout <= 0 {
		return fmt.Errorf("feed.idle_timeout must be positive")
	}
	if f.WriteTimeout <= 0 {
		return fmt.Errorf("feed.write_timeout must be positive")
	}
	if f.OutboundQueue <= 0 {
		return fmt.Errorf("feed.outbound_queue must be positive")
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cfg.Cache.StaleAfter <= 0 {
		return fmt.Errorf("cache.stale_after must be positive")
	}

	w := cfg.Watch
	if w.MaxKeys <= 0 {
		return fmt.Errorf("watch.max_keys must be positive")
	}
	if w.MaxPerKey <= 0 {
		return fmt.Errorf("watch.max_per_key must be positive")
	}
	if _, err := watch.ParsePolicy(w.Eviction); err != nil {
		return fmt.Errorf("watch.eviction: %w", err)
	}
	if w.SessionLength <= 0 {
		return fmt.Errorf("watch.session_length must be positive")
	}
	if w.Refresh <= 0 {
		return fmt.Errorf("watch.refresh must be positive")
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", cfg.HTTP.Port)
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey":
		if cfg.HTTP.Auth.KeyEnv == "" {
			return fmt.Errorf("http.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("http.auth: unknown mode %q", cfg.HTTP.Auth.Mode)
	}

	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
