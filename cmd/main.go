package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/http/api"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/http/site"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/http/swagger"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/worker"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/notify"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	app "github.com/13jisse-music/ChanteEnScene-sub003/internal/app"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/config"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// stack is the wired process: everything main starts and later stops.
type stack struct {
	handler http.Handler
	svc     *app.Service
	store   *repository.SQLStore
	broker  *feed.Broker
	pool    *worker.Pool
}

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	st, err := build(ctx, cfg)
	if err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, st.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           st.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("db_driver", cfg.DBDriver),
			logger.Bool("push_enabled", cfg.NotifyURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	st.close(shutdownCtx)

	loggerInstance.Info(shutdownCtx, "server stopped")
}

// build wires storage, the change feed, the notification pool, the service
// and every HTTP surface from cfg.
func build(ctx context.Context, cfg *config.Config) (*stack, error) {
	log := logger.Get()

	mode, err := ranking.ParseJuryMode(cfg.JuryMode)
	if err != nil {
		return nil, err
	}

	metrics.SetEnabled(cfg.MetricsEnabled)
	metrics.SetRefreshInterval(cfg.MetricsRefresh())

	broker := feed.NewBroker(
		feed.WithBufferSize(cfg.FeedBufferSize),
		feed.WithLogger(log.Named("feed")),
	)

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithPublisher(broker))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.NotifyURL, notify.WithTimeout(cfg.NotifyTimeout()))
	}
	pool := worker.NewPool(notifier,
		worker.WithWorkers(cfg.NotifyWorkers),
		worker.WithQueueSize(cfg.NotifyQueueSize),
		worker.WithNotifyTimeout(cfg.NotifyTimeout()),
		worker.WithPoolLogger(log.Named("notify")),
	)
	pool.Start(ctx)

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithFeed(broker),
		app.WithDispatcher(pool),
		app.WithCriteria(cfg.JuryCriteria),
		app.WithDefaultWeights(model.Weights{Jury: cfg.JuryWeight, Public: cfg.PublicWeight, Social: cfg.SocialWeight}),
		app.WithJuryMode(mode),
		app.WithRankingLimit(cfg.MaxRankingLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = pool.Shutdown(ctx)
		_ = store.Close()
		return nil, err
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret,
		auth.WithTTL(cfg.TokenTTL()),
		auth.WithAdminKey(cfg.AdminKey),
	)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// API reference under /api-docs
	swagger.Register(ctx, mux)

	// Spectator page under /live/{sid}
	site.Register(ctx, mux,
		site.WithPollInterval(cfg.PollInterval()),
		site.WithRevealFreshness(cfg.RevealFreshness()),
		site.WithLogger(log.Named("site")),
	)

	// Business API routes and change streams.
	api.NewServer(svc, issuer, broker, api.WithLogger(log.Named("api"))).Register(ctx, mux)

	return &stack{handler: mux, svc: svc, store: store, broker: broker, pool: pool}, nil
}

// close stops the service, drains pending notifications and closes the store.
func (s *stack) close(ctx context.Context) {
	log := logger.Get()
	s.svc.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		log.Warn(ctx, "notification pool shutdown", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		log.Warn(ctx, "store close", logger.Error(err))
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system
// metrics every metrics.RefreshInterval().
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges derived from service state.
// GetStats already updates the active events gauge.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateFeedSubscribers(stats.FeedSubscribers)
	metrics.UpdateQueueDepth("notify", stats.NotifyQueued)
}
