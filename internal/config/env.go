package config

import (
	"fmt"

	env "github.com/Netflix/go-env"
)

// envOverrides lists the settings that may be overridden from the
// environment. Unset variables leave the file value alone.
type envOverrides struct {
	FeedURL     *string `env:"LOBBYISUP_FEED_URL"`
	FeedVariant *string `env:"LOBBYISUP_FEED_VARIANT"`
	HTTPPort    *int    `env:"LOBBYISUP_HTTP_PORT"`
	LogLevel    *string `env:"LOBBYISUP_LOG_LEVEL"`
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if o.FeedURL != nil {
		cfg.Feed.URL = *o.FeedURL
	}
	if o.FeedVariant != nil {
		cfg.Feed.Variant = *o.FeedVariant
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	return nil
}
