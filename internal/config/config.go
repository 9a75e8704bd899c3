// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load(ctx) layers file and env on top.
// - Validation failures wrap ErrInvalidConfig; source failures wrap ErrLoadConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBDriver is "sqlite" or "postgres".
	DBDriver string `koanf:"db_driver"`

	// DBDSN is the driver specific data source name.
	DBDSN string `koanf:"db_dsn"`

	// PollIntervalMS is the sync layer fallback poll period.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// RevealFreshnessMS bounds how old a reveal may be and still trigger a celebration.
	RevealFreshnessMS int `koanf:"reveal_freshness_ms"`

	// FeedBufferSize bounds each change feed subscription.
	FeedBufferSize int `koanf:"feed_buffer_size"`

	// NotifyURL is the push fan-out endpoint. Empty disables push.
	NotifyURL string `koanf:"notify_url"`

	// NotifyTimeoutMS caps a single fan-out call.
	NotifyTimeoutMS int `koanf:"notify_timeout_ms"`

	// NotifyWorkers sets the number of notification workers.
	NotifyWorkers int `koanf:"notify_workers"`

	// NotifyQueueSize bounds pending notifications.
	NotifyQueueSize int `koanf:"notify_queue_size"`

	// JWTSecret signs admin and juror tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminKey is exchanged for an admin token at /auth/admin.
	AdminKey string `koanf:"admin_key"`

	// TokenTTLMinutes is the lifetime of issued tokens.
	TokenTTLMinutes int `koanf:"token_ttl_minutes"`

	// Default scoring weights in percent, used until a session configures its own.
	JuryWeight   float64 `koanf:"jury_weight"`
	PublicWeight float64 `koanf:"public_weight"`
	SocialWeight float64 `koanf:"social_weight"`

	// JuryCriteria maps a criterion name to its maximum score.
	JuryCriteria map[string]float64 `koanf:"jury_criteria"`

	// JuryMode combines a candidate's jury totals: sum or average.
	JuryMode string `koanf:"jury_mode"`

	// MaxRankingLimit caps the candidates returned by a ranking.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// MetricsEnabled turns Prometheus recording on. /metrics stays mounted either way.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is the period of the system gauge refresh.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		DBDriver:          "sqlite",
		DBDSN:             "file:chante.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		PollIntervalMS:    6000,
		RevealFreshnessMS: 120_000,
		FeedBufferSize:    256,
		NotifyTimeoutMS:   5000,
		NotifyWorkers:     runtime.NumCPU(),
		NotifyQueueSize:   1024,
		JWTSecret:         "change-me",
		TokenTTLMinutes:   12 * 60,
		JuryWeight:        60,
		PublicWeight:      40,
		SocialWeight:      0,
		JuryCriteria: map[string]float64{
			"voice":          10,
			"interpretation": 10,
			"stage_presence": 10,
		},
		JuryMode:        "sum",
		MaxRankingLimit:  100,
		MetricsEnabled:   true,
		MetricsRefreshMS: 10_000,
	}
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RevealFreshness returns the reveal freshness window as a duration.
func (c *Config) RevealFreshness() time.Duration {
	return time.Duration(c.RevealFreshnessMS) * time.Millisecond
}

// NotifyTimeout returns the per call fan-out timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns the system gauge refresh period.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// TokenTTL returns the issued token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != "sqlite" && c.DBDriver != "postgres":
		return fmt.Errorf("%w: db_driver must be sqlite or postgres, got %q", ErrInvalidConfig, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.PollIntervalMS < 1000 || c.PollIntervalMS > 60_000:
		return fmt.Errorf("%w: poll_interval_ms must be within 1000..60000", ErrInvalidConfig)
	case c.RevealFreshnessMS <= 0:
		return fmt.Errorf("%w: reveal_freshness_ms must be positive", ErrInvalidConfig)
	case c.FeedBufferSize <= 0, c.NotifyQueueSize <= 0, c.NotifyWorkers <= 0:
		return fmt.Errorf("%w: buffer, queue and worker sizes must be positive", ErrInvalidConfig)
	case c.JuryMode != "sum" && c.JuryMode != "average":
		return fmt.Errorf("%w: jury_mode must be sum or average, got %q", ErrInvalidConfig, c.JuryMode)
	case c.JuryWeight < 0 || c.PublicWeight < 0 || c.SocialWeight < 0:
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	case c.JWTSecret == "":
		return fmt.Errorf("%w: jwt_secret must not be empty", ErrInvalidConfig)
	case c.TokenTTLMinutes <= 0:
		return fmt.Errorf("%w: token_ttl_minutes must be positive", ErrInvalidConfig)
	case c.MaxRankingLimit <= 0:
		return fmt.Errorf("%w: max_ranking_limit must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	}
	for name, maxScore := range c.JuryCriteria {
		if maxScore <= 0 {
			return fmt.Errorf("%w: jury criterion %q needs a positive maximum", ErrInvalidConfig, name)
		}
	}
	return nil
}
