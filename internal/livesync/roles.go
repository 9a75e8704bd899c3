package livesync

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/reveal"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

// visibility is implemented by every watcher.
type visibility interface {
	SetVisible(bool)
}

// group runs a set of watchers that share visibility.
type group struct {
	mu       sync.Mutex
	hidden   bool
	watchers []visibility
}

func (g *group) add(v visibility) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v.SetVisible(!g.hidden)
	g.watchers = append(g.watchers, v)
}

func (g *group) remove(v visibility) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.watchers = slices.DeleteFunc(g.watchers, func(w visibility) bool { return w == v })
}

func (g *group) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watchers)
}

// SetVisible pauses or resumes polling of every watcher.
func (g *group) SetVisible(v bool) {
	g.mu.Lock()
	g.hidden = !v
	ws := slices.Clone(g.watchers)
	g.mu.Unlock()
	for _, w := range ws {
		w.SetVisible(v)
	}
}

func runAll(ctx context.Context, runs ...func(context.Context)) {
	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
	wg.Wait()
}

// resolveEvent returns eventID, or discovers the active event of the session.
func resolveEvent(ctx context.Context, r Reader, eventID, sessionID string, eventType model.EventType,
	g *group, opts []Option,
) (string, error) {
	if eventID != "" {
		return eventID, nil
	}
	d := NewEventDiscoverySync(r, sessionID, eventType, opts...)
	g.add(d)
	defer g.remove(d)
	return d.Discover(ctx)
}

// Target names the event a read model follows. EventID may be empty, in
// which case the active event of SessionID and EventType is discovered.
type Target struct {
	SessionID string
	EventType model.EventType
	EventID   string
}

// PublicSnapshot is what a spectator screen shows.
type PublicSnapshot struct {
	Event   *model.LiveEvent
	Lineup  []model.LineupEntry
	Current *model.LineupEntry
	Winner  *model.Candidate
}

// PublicDashboard is the spectator read model. It celebrates a reveal once,
// and only when the reveal is recent.
type PublicDashboard struct {
	group
	reader    Reader
	target    Target
	opts      []Option
	gate      *reveal.Gate
	now       func() time.Time
	celebrate func(model.LiveEvent)

	mu     sync.RWMutex
	event  *EventSync
	lineup *LineupSync
	log    logger.Logger
}

// PublicOption configures a PublicDashboard.
type PublicOption func(*PublicDashboard)

// WithRevealFreshness bounds how old a reveal may be and still be celebrated.
func WithRevealFreshness(d time.Duration) PublicOption {
	return func(p *PublicDashboard) { p.gate = reveal.NewGate(reveal.WithFreshness(d)) }
}

// WithClock overrides the time used to judge reveal freshness.
func WithClock(now func() time.Time) PublicOption {
	return func(p *PublicDashboard) {
		if now != nil {
			p.now = now
		}
	}
}

// OnCelebrate registers the reveal effect.
func OnCelebrate(fn func(model.LiveEvent)) PublicOption {
	return func(p *PublicDashboard) { p.celebrate = fn }
}

// WithSyncOptions passes watcher options through.
func WithSyncOptions(opts ...Option) PublicOption {
	return func(p *PublicDashboard) { p.opts = append(p.opts, opts...) }
}

// NewPublicDashboard creates the spectator read model for target.
func NewPublicDashboard(r Reader, target Target, opts ...PublicOption) *PublicDashboard {
	p := &PublicDashboard{
		reader: r,
		target: target,
		gate:   reveal.NewGate(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = newSettings(p.opts).log
	return p
}

// Run follows the event until ctx ends.
func (p *PublicDashboard) Run(ctx context.Context) error {
	eventID, err := resolveEvent(ctx, p.reader, p.target.EventID, p.target.SessionID, p.target.EventType, &p.group, p.opts)
	if err != nil {
		return err
	}
	ev := NewEventSync(p.reader, eventID, p.opts...)
	ev.OnChange(p.onEvent)
	lu := NewLineupSync(p.reader, eventID, p.opts...)

	p.mu.Lock()
	p.event, p.lineup = ev, lu
	p.mu.Unlock()
	p.add(ev)
	p.add(lu)

	runAll(ctx, ev.Run, lu.Run)
	return nil
}

func (p *PublicDashboard) onEvent(ev model.LiveEvent) {
	if !p.gate.Observe(ev.WinnerRevealedAt, p.now()) {
		return
	}
	p.log.Info(context.Background(), "winner reveal",
		logger.String("eventID", ev.ID),
		logger.OptionalString("candidateID", ev.WinnerCandidateID),
	)
	if p.celebrate != nil {
		p.celebrate(ev)
	}
}

// Snapshot returns the current de-duplicated state.
func (p *PublicDashboard) Snapshot() PublicSnapshot {
	p.mu.RLock()
	ev, lu := p.event, p.lineup
	p.mu.RUnlock()

	var s PublicSnapshot
	if ev == nil {
		return s
	}
	if e, ok := ev.Value(); ok {
		s.Event = &e
	}
	s.Lineup, _ = lu.Value()
	if cur, ok := lu.Current(); ok {
		s.Current = &cur
	}
	if s.Event != nil && s.Event.WinnerCandidateID != nil {
		for _, e := range s.Lineup {
			if e.CandidateID == *s.Event.WinnerCandidateID && e.Candidate != nil {
				c := *e.Candidate
				s.Winner = &c
			}
		}
	}
	return s
}

// JurySnapshot is what a juror's console shows.
type JurySnapshot struct {
	Event  *model.LiveEvent
	Lineup []model.LineupEntry
	Scores []model.JuryScore
}

// JuryConsole is one juror's read model.
type JuryConsole struct {
	group
	reader  Reader
	target  Target
	jurorID string
	opts    []Option

	mu     sync.RWMutex
	event  *EventSync
	lineup *LineupSync
	scores *JuryNotificationSync
}

// NewJuryConsole creates the read model of jurorID. Run it with a context
// carrying the juror's identity.
func NewJuryConsole(r Reader, target Target, jurorID string, opts ...Option) *JuryConsole {
	return &JuryConsole{reader: r, target: target, jurorID: jurorID, opts: opts}
}

// Run follows the event until ctx ends.
func (j *JuryConsole) Run(ctx context.Context) error {
	eventID, err := resolveEvent(ctx, j.reader, j.target.EventID, j.target.SessionID, j.target.EventType, &j.group, j.opts)
	if err != nil {
		return err
	}
	ev := NewEventSync(j.reader, eventID, j.opts...)
	lu := NewLineupSync(j.reader, eventID, j.opts...)
	sc := NewJuryNotificationSync(j.reader, j.target.SessionID, j.target.EventType, j.jurorID, nil, j.opts...)

	j.mu.Lock()
	j.event, j.lineup, j.scores = ev, lu, sc
	j.mu.Unlock()
	j.add(ev)
	j.add(lu)
	j.add(sc)

	runAll(ctx, ev.Run, lu.Run, sc.Run)
	return nil
}

// Snapshot returns the current de-duplicated state.
func (j *JuryConsole) Snapshot() JurySnapshot {
	j.mu.RLock()
	ev, lu, sc := j.event, j.lineup, j.scores
	j.mu.RUnlock()

	var s JurySnapshot
	if ev == nil {
		return s
	}
	if e, ok := ev.Value(); ok {
		s.Event = &e
	}
	s.Lineup, _ = lu.Value()
	s.Scores, _ = sc.Value()
	return s
}

// ControlSnapshot is what the control room operator sees.
type ControlSnapshot struct {
	Event   *model.LiveEvent
	Lineup  []model.LineupEntry
	Tally   map[string]int
	Scores  []model.JuryScore
	Ranking *types.RankingResponse
	Toasts  []Toast
}

const maxToasts = 20

// ControlRoom is the operator's read model. Tally and jury changes trigger a
// ranking refresh.
type ControlRoom struct {
	group
	reader   Reader
	target   Target
	category string
	opts     []Option
	onToast  func(Toast)

	mu      sync.RWMutex
	event   *EventSync
	lineup  *LineupSync
	tally   *VoteTallySync
	scores  *JuryNotificationSync
	ranking *RankingSync
	toasts  []Toast
}

// NewControlRoom creates the operator read model. Run it with a context
// carrying an admin identity.
func NewControlRoom(r Reader, target Target, category string, onToast func(Toast), opts ...Option) *ControlRoom {
	return &ControlRoom{reader: r, target: target, category: category, onToast: onToast, opts: opts}
}

func (c *ControlRoom) toast(t Toast) {
	c.mu.Lock()
	c.toasts = append(c.toasts, t)
	if len(c.toasts) > maxToasts {
		c.toasts = slices.Clone(c.toasts[len(c.toasts)-maxToasts:])
	}
	c.mu.Unlock()
	if c.onToast != nil {
		c.onToast(t)
	}
}

// Run follows the event until ctx ends.
func (c *ControlRoom) Run(ctx context.Context) error {
	eventID, err := resolveEvent(ctx, c.reader, c.target.EventID, c.target.SessionID, c.target.EventType, &c.group, c.opts)
	if err != nil {
		return err
	}
	ev := NewEventSync(c.reader, eventID, c.opts...)
	lu := NewLineupSync(c.reader, eventID, c.opts...)
	ta := NewVoteTallySync(c.reader, c.target.SessionID, c.opts...)
	sc := NewJuryNotificationSync(c.reader, c.target.SessionID, c.target.EventType, "", c.toast, c.opts...)
	rk := NewRankingSync(c.reader, c.target.SessionID, c.target.EventType, c.category, c.opts...)
	ta.OnChange(func(map[string]int) { rk.Refresh() })
	sc.OnChange(func([]model.JuryScore) { rk.Refresh() })

	c.mu.Lock()
	c.event, c.lineup, c.tally, c.scores, c.ranking = ev, lu, ta, sc, rk
	c.mu.Unlock()
	for _, v := range []visibility{ev, lu, ta, sc, rk} {
		c.add(v)
	}

	runAll(ctx, ev.Run, lu.Run, ta.Run, sc.Run, rk.Run)
	return nil
}

// Snapshot returns the current de-duplicated state.
func (c *ControlRoom) Snapshot() ControlSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s ControlSnapshot
	s.Toasts = slices.Clone(c.toasts)
	if c.event == nil {
		return s
	}
	if e, ok := c.event.Value(); ok {
		s.Event = &e
	}
	s.Lineup, _ = c.lineup.Value()
	s.Tally, _ = c.tally.Value()
	s.Scores, _ = c.scores.Value()
	if r, ok := c.ranking.Value(); ok {
		s.Ranking = &r
	}
	return s
}
