package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.PollIntervalMS, convey.ShouldEqual, 6000)
				convey.So(cfg.JuryWeight, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CHANTE_ADDR", ":8080")
			_ = os.Setenv("CHANTE_POLL_INTERVAL_MS", "5000")
			_ = os.Setenv("CHANTE_NOTIFY_QUEUE_SIZE", "64")
			_ = os.Setenv("CHANTE_SOCIAL_WEIGHT", "10")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.PollIntervalMS, convey.ShouldEqual, 5000)
				convey.So(cfg.NotifyQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.SocialWeight, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
db_driver: postgres
db_dsn: "postgres://chante@localhost/chante?sslmode=disable"
poll_interval_ms: 7000
jury_criteria:
  voice: 20
  charisma: 5
`)
			_ = os.Setenv("CHANTE_CONFIG", tmpFile)
			_ = os.Setenv("CHANTE_ADDR", ":8081")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over file and file wins over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.DBDriver, convey.ShouldEqual, "postgres")
				convey.So(cfg.PollIntervalMS, convey.ShouldEqual, 7000)
				convey.So(cfg.JuryCriteria, convey.ShouldResemble, map[string]float64{"voice": 20, "charisma": 5})
				convey.So(cfg.PublicWeight, convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When a .env file provides values", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "test.env")
			convey.So(os.WriteFile(path, []byte("CHANTE_ADMIN_KEY=backstage\nCHANTE_LOG_FORMAT=json\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("CHANTE_DOTENV", path)
			_ = os.Setenv("CHANTE_LOG_FORMAT", "text")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then they fill in without overriding the real environment", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AdminKey, convey.ShouldEqual, "backstage")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("CHANTE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CHANTE_CONFIG", "/nonexistent/chante.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("CHANTE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CHANTE_NOTIFY_WORKERS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"CHANTE_CONFIG",
		"CHANTE_DOTENV",
		"CHANTE_ADDR",
		"CHANTE_POLL_INTERVAL_MS",
		"CHANTE_NOTIFY_QUEUE_SIZE",
		"CHANTE_NOTIFY_WORKERS",
		"CHANTE_SOCIAL_WEIGHT",
		"CHANTE_ADMIN_KEY",
		"CHANTE_LOG_FORMAT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chante-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
