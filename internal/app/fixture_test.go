package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/notify"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	service "github.com/13jisse-music/ChanteEnScene-sub003/internal/app"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeDispatcher struct {
	mu     sync.Mutex
	got    []notify.Notification
	refuse bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, n notify.Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refuse {
		return false
	}
	d.got = append(d.got, n)
	return true
}

func (d *fakeDispatcher) tags() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.got))
	for _, n := range d.got {
		out = append(out, n.Tag)
	}
	return out
}

type fixture struct {
	store    *repository.SQLStore
	feed     *feed.Broker
	svc      *service.Service
	dispatch *fakeDispatcher
	admin    context.Context
	public   context.Context
	now      time.Time
}

const session = "s-2026"

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		feed:     feed.NewBroker(),
		dispatch: &fakeDispatcher{},
		admin:    auth.WithIdentity(ctx, auth.Identity{Subject: "control-room", Role: auth.RoleAdmin}),
		public:   ctx,
		now:      time.Date(2026, 6, 21, 20, 0, 0, 0, time.UTC),
	}
	store, err := repository.Open(ctx, repository.DriverSQLite,
		"file:"+uuid.NewString()+"?mode=memory&cache=shared",
		repository.WithPublisher(f.feed))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	f.store = store

	base := []service.Option{
		service.WithStore(store),
		service.WithFeed(f.feed),
		service.WithDispatcher(f.dispatch),
		service.WithClock(func() time.Time { return f.now }),
		service.WithCriteria(map[string]float64{"voice": 50, "stage_presence": 50}),
	}
	f.svc = service.New(append(base, opts...)...)
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(f.svc.Stop)
	return f
}

func (f *fixture) tick() { f.now = f.now.Add(time.Second) }

func (f *fixture) juror(id string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Subject: id, Role: auth.RoleJuror})
}

func (f *fixture) candidate(t *testing.T, name, category string, status model.CandidateStatus) model.Candidate {
	t.Helper()
	c, err := f.svc.RegisterCandidate(f.admin, session, types.CandidateRequest{
		StageName: name, Category: category, Status: status,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	f.tick()
	return c
}

// finalWithLineup creates a final and checks the candidates in, in order.
func (f *fixture) finalWithLineup(t *testing.T, names ...string) (model.LiveEvent, []model.LineupEntry) {
	t.Helper()
	ev, err := f.svc.CreateEvent(f.admin, session, model.EventFinal)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	var entries []model.LineupEntry
	for _, n := range names {
		c := f.candidate(t, n, "adult", model.CandidateFinalist)
		e, err := f.svc.Checkin(f.public, ev.ID, c.ID)
		if err != nil {
			t.Fatalf("checkin %s: %v", n, err)
		}
		entries = append(entries, e)
	}
	return ev, entries
}

func (f *fixture) lineup(t *testing.T, eventID string) map[string]model.LineupEntry {
	t.Helper()
	entries, err := f.svc.Lineup(context.Background(), eventID)
	if err != nil {
		t.Fatalf("lineup: %v", err)
	}
	out := make(map[string]model.LineupEntry, len(entries))
	for _, e := range entries {
		out[e.ID] = e
	}
	return out
}

func (f *fixture) event(t *testing.T, id string) model.LiveEvent {
	t.Helper()
	ev, err := f.svc.Event(context.Background(), id)
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	return ev
}
