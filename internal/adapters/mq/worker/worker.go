// Package worker runs the notification fan-out: a bounded queue drained by a
// pool of workers that call the push service.
//
// Dispatch never blocks the caller and never reports delivery failures back.
// Failures are counted and logged by the workers.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/queue"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/notify"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultQueueSize     = 1024
	poolShutdownTimeout  = 30 * time.Second
)

// Source is what workers read notifications from.
type Source interface {
	Dequeue(ctx context.Context) <-chan notify.Notification
}

// InMemoryWorker delivers notifications one at a time.
type InMemoryWorker struct {
	source   Source
	notifier notify.Notifier
	name     string
	timeout  time.Duration

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from source.
func NewInMemoryWorker(source Source, notifier notify.Notifier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:   source,
		notifier: notifier,
		name:     "worker",
		timeout:  defaultNotifyTimeout,
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run delivers notifications until the source is drained and closed, or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ch := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			w.deliver(ctx, n)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) deliver(ctx context.Context, n notify.Notification) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	report, err := w.notifier.Notify(callCtx, n)
	if err != nil {
		metrics.RecordNotifications("failed", 1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "notify_error")
		w.logger.Warn(ctx, "notification failed",
			logger.String("session_id", n.SessionID),
			logger.String("tag", n.Tag),
			logger.Error(err),
		)
		return
	}

	metrics.RecordNotifications("sent", report.Sent)
	metrics.RecordNotifications("failed", report.Failed)
	metrics.RecordNotifications("expired", report.Expired)
	if report.Failed > 0 {
		w.logger.Warn(ctx, "notification partially delivered",
			logger.String("session_id", n.SessionID),
			logger.String("tag", n.Tag),
			logger.Int("sent", report.Sent),
			logger.Int("failed", report.Failed),
			logger.Int("expired", report.Expired),
		)
		return
	}
	w.logger.Debug(ctx, "notification delivered",
		logger.String("tag", n.Tag),
		logger.Int("sent", report.Sent),
		logger.Int("expired", report.Expired),
	)
}

// Stats is a snapshot of the pool.
type Stats struct {
	Queued   int
	Capacity int
	Workers  int
}

// Pool owns the notification queue and the workers draining it.
type Pool struct {
	queue    *queue.InMemoryQueue[notify.Notification]
	notifier notify.Notifier
	workers  []*InMemoryWorker
	size     int
	capacity int
	timeout  time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// NewPool creates a pool delivering through notifier.
func NewPool(notifier notify.Notifier, opts ...PoolOption) *Pool {
	p := &Pool{
		notifier: notifier,
		size:     runtime.NumCPU(),
		capacity: defaultQueueSize,
		timeout:  defaultNotifyTimeout,
		logger:   logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = notify.NopNotifier{}
	}

	p.queue = queue.NewInMemoryQueue[notify.Notification](
		queue.WithCapacity(p.capacity),
		queue.WithName("notify"),
	)
	p.workers = make([]*InMemoryWorker, p.size)
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(p.queue, p.notifier,
			WithName("worker-"+strconv.Itoa(i)),
			WithTimeout(p.timeout),
			WithLogger(p.logger),
		)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Dispatch queues n for delivery. It reports false when the queue is full
// or closed; the notification is then dropped.
func (p *Pool) Dispatch(ctx context.Context, n notify.Notification) bool {
	if p.queue.Enqueue(ctx, n) {
		return true
	}
	metrics.RecordNotificationDropped()
	p.logger.Warn(ctx, "notification dropped",
		logger.String("session_id", n.SessionID),
		logger.String("tag", n.Tag),
	)
	return false
}

// Stats returns the current queue depth and pool size.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:   p.queue.Len(),
		Capacity: p.queue.Cap(),
		Workers:  len(p.workers),
	}
}

// Shutdown stops accepting notifications and waits for the queued ones to be
// delivered, at most until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()
	if !started {
		return nil
	}
	defer cancel()
	defer metrics.UpdateWorkerActiveCount(0)

	shutdownCtx, stop := context.WithTimeout(ctx, poolShutdownTimeout)
	defer stop()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	return nil
}
