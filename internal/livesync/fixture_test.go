package livesync_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	service "github.com/13jisse-music/ChanteEnScene-sub003/internal/app"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/livesync"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const session = "s-2026"

var stageTime = time.Date(2026, 6, 21, 20, 0, 0, 0, time.UTC)

type fixture struct {
	broker *feed.Broker
	svc    *service.Service
	admin  context.Context
	feed   *trackingFeed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		broker: feed.NewBroker(),
		admin:  auth.WithIdentity(ctx, auth.Identity{Subject: "control-room", Role: auth.RoleAdmin}),
	}
	f.feed = &trackingFeed{inner: livesync.BrokerFeed{Broker: f.broker}}
	store, err := repository.Open(ctx, repository.DriverSQLite,
		"file:"+uuid.NewString()+"?mode=memory&cache=shared",
		repository.WithPublisher(f.broker))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f.svc = service.New(
		service.WithStore(store),
		service.WithFeed(f.broker),
		service.WithClock(func() time.Time { return stageTime }),
		service.WithCriteria(map[string]float64{"voice": 50, "stage_presence": 50}),
	)
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(f.svc.Stop)
	return f
}

func (f *fixture) juror(id string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Subject: id, Role: auth.RoleJuror})
}

func (f *fixture) candidate(t *testing.T, name string) model.Candidate {
	t.Helper()
	c, err := f.svc.RegisterCandidate(f.admin, session, types.CandidateRequest{
		StageName: name, Category: "adult", Status: model.CandidateFinalist,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return c
}

func (f *fixture) final(t *testing.T) model.LiveEvent {
	t.Helper()
	ev, err := f.svc.CreateEvent(f.admin, session, model.EventFinal)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func (f *fixture) checkin(t *testing.T, eventID string, c model.Candidate) model.LineupEntry {
	t.Helper()
	e, err := f.svc.Checkin(context.Background(), eventID, c.ID)
	if err != nil {
		t.Fatalf("checkin %s: %v", c.StageName, err)
	}
	return e
}

// trackingFeed remembers its subscriptions so tests can cut them.
type trackingFeed struct {
	inner livesync.Feed
	mu    sync.Mutex
	subs  []livesync.Subscription
	count atomic.Int32
}

func (tf *trackingFeed) Subscribe(ctx context.Context, filter model.ChangeFilter) (livesync.Subscription, error) {
	s, err := tf.inner.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	tf.mu.Lock()
	tf.subs = append(tf.subs, s)
	tf.mu.Unlock()
	tf.count.Add(1)
	return s, nil
}

func (tf *trackingFeed) cutAll() {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	for _, s := range tf.subs {
		s.Close()
	}
	tf.subs = nil
}

// countingReader counts lineup reads.
type countingReader struct {
	livesync.Reader
	lineupReads atomic.Int32
}

func (r *countingReader) Lineup(ctx context.Context, eventID string) ([]model.LineupEntry, error) {
	r.lineupReads.Add(1)
	return r.Reader.Lineup(ctx, eventID)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// pushOnly keeps the poll out of the way so only pushes can move the value.
func pushOnly(f *fixture) []livesync.Option {
	return []livesync.Option{livesync.WithFeed(f.feed), livesync.WithPollInterval(time.Hour)}
}
