// Package feed is the in-process change feed: the store publishes committed
// row changes and every subscriber receives the ones its filter selects.
//
// Delivery is best effort. Each subscription has a bounded queue and a full
// queue drops the change, the same way a mobile client silently loses its
// realtime channel. Readers must poll to stay correct.
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/queue"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const defaultBufferSize = 256

// Option applies a configuration option to the Broker.
type Option func(*Broker)

// WithBufferSize bounds each subscription queue.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.log = l
		}
	}
}

// Broker fans changes out to subscriptions.
type Broker struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	log        logger.Logger
}

// NewBroker creates a Broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:       make(map[string]*Subscription),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers each change to every matching subscription. It never blocks.
func (b *Broker) Publish(ctx context.Context, changes ...model.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range changes {
		metrics.RecordFeedPublished(c.Table)
		for _, s := range b.subs {
			if !s.filter.Matches(c) {
				continue
			}
			if !s.q.Enqueue(ctx, c) {
				metrics.RecordFeedDropped(c.Table)
				if b.log != nil {
					b.log.Debug(ctx, "change dropped for slow subscriber",
						logger.String("subscription", s.id),
						logger.String("table", c.Table),
						logger.String("id", c.ID))
				}
			}
		}
	}
}

// Subscribe registers a subscription for changes passing filter. The caller
// must Close it.
func (b *Broker) Subscribe(ctx context.Context, filter model.ChangeFilter) *Subscription {
	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		id:     uuid.NewString(),
		filter: filter,
		q: queue.NewInMemoryQueue[model.Change](
			queue.WithCapacity(b.bufferSize),
			queue.WithName("feed"),
		),
		broker: b,
		cancel: cancel,
	}
	s.ch = s.q.Dequeue(sctx)

	b.mu.Lock()
	b.subs[s.id] = s
	n := len(b.subs)
	b.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
	return s
}

// Len returns the number of open subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Drop closes one subscription as if its connection had been lost. The
// subscriber sees its channel close.
func (b *Broker) Drop(id string) {
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if ok {
		s.Close()
	}
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)
}

// Subscription receives matching changes until closed.
type Subscription struct {
	id     string
	filter model.ChangeFilter
	q      *queue.InMemoryQueue[model.Change]
	ch     <-chan model.Change
	broker *Broker
	cancel context.CancelFunc
	once   sync.Once
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// C returns the delivery channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan model.Change { return s.ch }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
		_ = s.q.Close()
		s.cancel()
	})
}
