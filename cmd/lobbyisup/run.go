package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lobbyisup/lobbyisup/internal/api"
	"github.com/lobbyisup/lobbyisup/internal/auth"
	"github.com/lobbyisup/lobbyisup/internal/cache"
	"github.com/lobbyisup/lobbyisup/internal/config"
	"github.com/lobbyisup/lobbyisup/internal/feed"
	"github.com/lobbyisup/lobbyisup/internal/metrics"
	"github.com/lobbyisup/lobbyisup/internal/upstream"
	"github.com/lobbyisup/lobbyisup/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the lobby feed and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			level := new(slog.LevelVar)
			level.Set(cfg.Log.SlogLevel())
			slog.SetDefault(newLogger(os.Stdout, cfg.Log.Format, level))

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, configPath, level)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults and environment only when empty)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config; ignored when missing")
	return cmd
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired process: one cache, one upstream supervisor and the HTTP
// surface in front of them.
type app struct {
	cache      *cache.Cache
	supervisor *upstream.Supervisor
	server     *http.Server
}

func newApp(cfg *config.Config, reg *prometheus.Registry) (*app, error) {
	m := metrics.New(metrics.WithRegistry(reg))

	policy, err := watch.ParsePolicy(cfg.Watch.Eviction)
	if err != nil {
		return nil, err
	}
	admission := watch.NewAdmission(
		watch.WithLimits(cfg.Watch.MaxKeys, cfg.Watch.MaxPerKey),
		watch.WithPolicy(policy),
		watch.WithMetrics(m),
	)
	c := cache.New(
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithStaleAfter(cfg.Cache.StaleAfter),
		cache.WithAdmission(admission),
		cache.WithMetrics(m),
	)

	variant, err := feed.ParseVariant(cfg.Feed.Variant)
	if err != nil {
		return nil, err
	}
	dec, err := feed.NewDecoder(variant,
		feed.WithSubscriptions(cfg.Feed.Subscribe...),
		feed.WithLocation(cfg.Feed.Location),
	)
	if err != nil {
		return nil, err
	}
	sup := upstream.New(upstreamConfig(cfg.Feed), dec, c, upstream.WithMetrics(m))

	handler := api.New(c,
		api.WithUpstream(sup),
		api.WithAuth(auth.APIKey(cfg.HTTP.Auth.Mode, cfg.HTTP.Auth.Header, cfg.HTTP.Auth.Key())),
		api.WithSession(cfg.Watch.SessionLength, cfg.Watch.Refresh),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)

	return &app{
		cache:      c,
		supervisor: sup,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func upstreamConfig(f config.FeedConfig) upstream.Config {
	return upstream.Config{
		URL:           f.URL,
		Host:          f.Host,
		Origin:        f.Origin,
		UserAgent:     f.UserAgent,
		Subprotocols:  f.Subprotocols,
		Compression:   f.Compression,
		RetryDelay:    f.RetryDelay,
		RetryJitter:   f.RetryJitter,
		IdleTimeout:   f.IdleTimeout,
		WriteTimeout:  f.WriteTimeout,
		KeepAlive:     f.KeepAlive,
		OutboundQueue: f.OutboundQueue,
	}
}

func serve(ctx context.Context, cfg *config.Config, configPath string, level *slog.LevelVar) error {
	slog.Info("lobbyisup starting",
		"version", version,
		"feed_url", cfg.Feed.URL,
		"variant", cfg.Feed.Variant,
		"http_port", cfg.HTTP.Port,
		"auth_mode", cfg.HTTP.Auth.Mode,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, reg)
	if err != nil {
		return err
	}

	// Hot-reload only adjusts the log level; everything else needs a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(updated *config.Config) {
				level.Set(updated.Log.SlogLevel())
				slog.Info("config hot-reloaded", "log_level", updated.Log.Level)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	upstreamDone := make(chan struct{})
	go func() {
		defer close(upstreamDone)
		if err := a.supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("upstream supervisor stopped", "err", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		slog.Error("HTTP server stopped", "err", runErr)
	}

	slog.Info("lobbyisup shutting down")
	return errors.Join(runErr, a.shutdown(upstreamDone))
}

// shutdown ends every watch session, closes the upstream connection and
// drains the HTTP server.
func (a *app) shutdown(upstreamDone <-chan struct{}) error {
	if n := a.cache.Admission().CancelAll(); n > 0 {
		slog.Info("ended watch sessions", "count", n)
	}
	a.supervisor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(ctx)

	select {
	case <-upstreamDone:
	case <-ctx.Done():
		slog.Warn("upstream supervisor did not stop in time")
	}
	a.cache.Close()
	return err
}
