// Package service is the only writer of live event state. It runs the
// control room actions, ingests votes and jury scores, and computes rankings
// for the HTTP API.
package service

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/worker"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/notify"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/scoring"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const defaultRankingLimit = 100

// Dispatcher queues push notifications without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) bool
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, notify.Notification) bool { return true }

// Service implements the API dependencies for live events.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	dispatcher Dispatcher
	feed       interface{ Len() int }
	aggregator *ranking.Aggregator
	scorecard  *scoring.Scorecard

	// Configuration
	criteria       map[string]float64
	defaultWeights model.Weights
	juryMode       ranking.JuryMode
	rankingLimit   int

	now   func() time.Time
	newID func() string

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the event state store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithDispatcher sets the notification fan-out.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithFeed reports change feed subscribers in GetStats.
func WithFeed(feed interface{ Len() int }) Option {
	return func(s *Service) {
		s.feed = feed
	}
}

// WithCriteria sets the jury criteria and the maximum score of each.
func WithCriteria(criteria map[string]float64) Option {
	return func(s *Service) {
		if len(criteria) > 0 {
			s.criteria = maps.Clone(criteria)
		}
	}
}

// WithDefaultWeights sets the weights used by sessions without their own.
func WithDefaultWeights(w model.Weights) Option {
	return func(s *Service) {
		s.defaultWeights = w
	}
}

// WithJuryMode selects whether jury totals are summed or averaged.
func WithJuryMode(mode ranking.JuryMode) Option {
	return func(s *Service) {
		s.juryMode = mode
	}
}

// WithRankingLimit caps the number of rows a ranking returns.
func WithRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingLimit = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how row ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dispatcher: nopDispatcher{},
		criteria:       scoring.DefaultCriteria(),
		defaultWeights: model.Weights{Jury: 60, Public: 40},
		juryMode:       ranking.JurySum,
		rankingLimit:   defaultRankingLimit,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.aggregator = ranking.New(ranking.WithJuryMode(s.juryMode))
	s.scorecard = scoring.NewScorecard(scoring.WithCriteria(s.criteria))
	return s
}

// Start checks the service is wired and marks it running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		return errors.New("service: no store configured")
	}

	s.started = true
	s.startedAt = s.clock()
	s.logger.Info(ctx, "live event service started",
		logger.Int("criteria", len(s.criteria)),
		logger.Float64("juryWeight", s.defaultWeights.Jury),
		logger.Float64("publicWeight", s.defaultWeights.Public),
		logger.Float64("socialWeight", s.defaultWeights.Social),
	)
	return nil
}

// Stop marks the service stopped. The store and dispatcher belong to the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "live event service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st types.Stats
	if !s.started {
		return st
	}
	st.Uptime = s.clock().Sub(s.startedAt).Round(time.Second).String()

	if n, err := s.store.CountActiveEvents(ctx); err == nil {
		st.ActiveEvents = n
		metrics.UpdateActiveEvents(n)
	} else {
		s.log().Warn(ctx, "count active events", logger.Error(err))
	}
	if s.feed != nil {
		st.FeedSubscribers = s.feed.Len()
	}
	if p, ok := s.dispatcher.(interface{ Stats() worker.Stats }); ok {
		ps := p.Stats()
		st.NotifyQueued = ps.Queued
		st.NotifyCapacity = ps.Capacity
		st.NotifyWorkers = ps.Workers
	}
	return st
}

// Criteria returns a copy of the configured jury criteria.
func (s *Service) Criteria() map[string]float64 {
	return s.scorecard.Criteria()
}

// clock returns the current time truncated to the store's millisecond precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) log() logger.Logger {
	if s.logger == nil {
		return logger.Get().Named("service")
	}
	return s.logger
}

// finish records the outcome of an action and passes err through.
func (s *Service) finish(ctx context.Context, action string, err error) error {
	if err == nil {
		metrics.RecordActionResult(action, "success")
		return nil
	}
	outcome := "error"
	if kind := model.KindOf(err); kind != nil {
		outcome = strings.ReplaceAll(kind.Error(), " ", "_")
	}
	metrics.RecordActionResult(action, outcome)
	metrics.RecordErrorByComponent("service", outcome)
	if errors.Is(err, model.ErrUpstreamUnavailable) || model.KindOf(err) == nil {
		s.log().Error(ctx, "action failed", logger.String("action", action), logger.Error(err))
	} else {
		s.log().Debug(ctx, "action refused", logger.String("action", action), logger.Error(err))
	}
	return err
}

// notify hands n to the dispatcher. Delivery problems never reach the caller.
func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if !s.dispatcher.Dispatch(context.WithoutCancel(ctx), n) {
		s.log().Warn(ctx, "notification not queued", logger.String("tag", n.Tag))
	}
}
