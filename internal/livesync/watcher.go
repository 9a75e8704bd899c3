package livesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

// DefaultPollInterval is the fallback poll period.
const DefaultPollInterval = 6 * time.Second

const (
	channelPush = "push"
	channelPoll = "poll"
)

// FetchFunc performs the full read of a watched entity.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// ApplyFunc folds one pushed change into the current value. It must not
// modify cur in place.
type ApplyFunc[T any] func(ctx context.Context, cur T, c model.Change) (T, error)

type settings struct {
	interval time.Duration
	log      logger.Logger
	feed     Feed
}

// Option applies a configuration option to watchers and read models.
type Option func(*settings)

// WithPollInterval sets the poll period.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFeed enables pushes from f. Without a feed a watcher only polls.
func WithFeed(f Feed) Option {
	return func(s *settings) {
		s.feed = f
	}
}

func newSettings(opts []Option) settings {
	s := settings{interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("livesync")
	}
	return s
}

// Watcher keeps one read model current from a change subscription and a
// poll. Both paths end in the same Gate, so OnChange only sees genuine
// differences.
type Watcher[T any] struct {
	name   string
	cfg    settings
	filter *model.ChangeFilter
	fetch  FetchFunc[T]
	apply  ApplyFunc[T]

	gate   Gate[T]
	loaded atomic.Bool

	mu        sync.Mutex
	visible   bool
	listeners []func(T)

	wake    chan struct{}
	refresh chan struct{}
}

// NewWatcher creates a watcher named name that reads with fetch.
func NewWatcher[T any](name string, fetch FetchFunc[T], opts ...Option) *Watcher[T] {
	return &Watcher[T]{
		name:    name,
		cfg:     newSettings(opts),
		fetch:   fetch,
		visible: true,
		wake:    make(chan struct{}, 1),
		refresh: make(chan struct{}, 1),
	}
}

// Subscribe makes the watcher listen to changes passing filter. Without an
// ApplyFunc every push triggers a full read.
func (w *Watcher[T]) Subscribe(filter model.ChangeFilter, apply ApplyFunc[T]) *Watcher[T] {
	w.filter = &filter
	w.apply = apply
	return w
}

// OnChange registers fn to receive every applied value. Callbacks run on the
// watcher goroutine.
func (w *Watcher[T]) OnChange(fn func(T)) *Watcher[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
	return w
}

// Value returns the last applied value.
func (w *Watcher[T]) Value() (T, bool) { return w.gate.Value() }

// Loaded reports whether a full read has succeeded.
func (w *Watcher[T]) Loaded() bool { return w.loaded.Load() }

// Visible reports whether polling is active.
func (w *Watcher[T]) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// SetVisible pauses polling while hidden. Becoming visible again triggers
// an immediate read.
func (w *Watcher[T]) SetVisible(v bool) {
	w.mu.Lock()
	changed := w.visible != v
	w.visible = v
	w.mu.Unlock()
	if v && changed {
		signal(w.wake)
	}
}

// Refresh asks for a full read regardless of visibility.
func (w *Watcher[T]) Refresh() { signal(w.refresh) }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run keeps the value current until ctx ends. Read failures are logged,
// counted and retried on the next tick.
func (w *Watcher[T]) Run(ctx context.Context) {
	sub := w.subscribe(ctx)
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	w.poll(ctx)
	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		var changes <-chan model.Change
		if sub != nil {
			changes = sub.C()
		}
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				w.cfg.log.Debug(ctx, "subscription lost", logger.String("watcher", w.name))
				sub = nil
				continue
			}
			w.push(ctx, c)
		case <-ticker.C:
			if sub == nil {
				sub = w.subscribe(ctx)
			}
			if w.Visible() {
				w.poll(ctx)
			}
		case <-w.wake:
			if w.Visible() {
				w.poll(ctx)
			}
		case <-w.refresh:
			w.poll(ctx)
		}
	}
}

func (w *Watcher[T]) subscribe(ctx context.Context) Subscription {
	if w.filter == nil || w.cfg.feed == nil {
		return nil
	}
	sub, err := w.cfg.feed.Subscribe(ctx, *w.filter)
	if err != nil {
		metrics.RecordSyncFetchError(w.name)
		w.cfg.log.Debug(ctx, "subscribe failed", logger.String("watcher", w.name), logger.Error(err))
		return nil
	}
	return sub
}

func (w *Watcher[T]) poll(ctx context.Context) {
	v, err := w.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.RecordSyncFetchError(w.name)
			w.cfg.log.Debug(ctx, "read failed", logger.String("watcher", w.name), logger.Error(err))
		}
		return
	}
	w.loaded.Store(true)
	w.offer(v, channelPoll)
}

func (w *Watcher[T]) push(ctx context.Context, c model.Change) {
	if w.apply == nil || !w.Loaded() {
		v, err := w.fetch(ctx)
		if err != nil {
			metrics.RecordSyncFetchError(w.name)
			w.cfg.log.Debug(ctx, "read after push failed", logger.String("watcher", w.name), logger.Error(err))
			return
		}
		w.loaded.Store(true)
		w.offer(v, channelPush)
		return
	}
	cur, _ := w.gate.Value()
	v, err := w.apply(ctx, cur, c)
	if err != nil {
		metrics.RecordSyncFetchError(w.name)
		w.cfg.log.Debug(ctx, "apply failed", logger.String("watcher", w.name),
			logger.String("table", c.Table), logger.String("id", c.ID), logger.Error(err))
		return
	}
	w.offer(v, channelPush)
}

func (w *Watcher[T]) offer(v T, channel string) {
	if !w.gate.Apply(v) {
		metrics.RecordSyncSkipped(w.name, channel)
		return
	}
	metrics.RecordSyncApplied(w.name, channel)
	w.mu.Lock()
	listeners := append([]func(T){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}
