package livesync

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/dedupe"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// EventSync watches one live event row.
type EventSync struct {
	*Watcher[model.LiveEvent]
}

// NewEventSync watches eventID.
func NewEventSync(r Reader, eventID string, opts ...Option) *EventSync {
	w := NewWatcher("event", func(ctx context.Context) (model.LiveEvent, error) {
		return r.Event(ctx, eventID)
	}, opts...)
	w.Subscribe(model.ChangeFilter{Table: model.TableLiveEvents, Key: "id", Value: eventID}, nil)
	return &EventSync{Watcher: w}
}

// LineupSync watches the lineup of one event. Inserted rows are completed
// with their candidate by a separate read, the way a client without joins
// would do it.
type LineupSync struct {
	*Watcher[[]model.LineupEntry]
	reader Reader
	seen   dedupe.Deduper
}

// NewLineupSync watches the lineup of eventID.
func NewLineupSync(r Reader, eventID string, opts ...Option) *LineupSync {
	s := &LineupSync{
		reader: r,
		seen:   dedupe.NewInMemoryDeduper(),
	}
	s.Watcher = NewWatcher("lineup", s.fetch(eventID), opts...)
	s.Subscribe(model.ChangeFilter{Table: model.TableLineupEntries, Key: "live_event_id", Value: eventID}, s.apply)
	return s
}

func (s *LineupSync) fetch(eventID string) FetchFunc[[]model.LineupEntry] {
	return func(ctx context.Context) ([]model.LineupEntry, error) {
		entries, err := s.reader.Lineup(ctx, eventID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			s.seen.SeenAndRecord(ctx, e.ID)
		}
		return byPosition(entries), nil
	}
}

func byPosition(entries []model.LineupEntry) []model.LineupEntry {
	out := slices.Clone(entries)
	if out == nil {
		out = []model.LineupEntry{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *LineupSync) apply(ctx context.Context, cur []model.LineupEntry, c model.Change) ([]model.LineupEntry, error) {
	switch c.Op {
	case model.OpInsert:
		if s.seen.SeenAndRecord(ctx, c.ID) {
			return cur, nil
		}
		e, ok := decodeRow[model.LineupEntry](c)
		if !ok {
			s.seen.Unrecord(ctx, c.ID)
			return nil, errors.New("undecodable lineup row " + c.ID)
		}
		cand, err := s.reader.Candidate(ctx, e.CandidateID)
		if err != nil {
			s.seen.Unrecord(ctx, c.ID)
			return nil, err
		}
		e.Candidate = &cand
		return byPosition(append(slices.Clone(cur), e)), nil

	case model.OpUpdate:
		e, ok := decodeRow[model.LineupEntry](c)
		if !ok {
			return nil, errors.New("undecodable lineup row " + c.ID)
		}
		out := slices.Clone(cur)
		for i := range out {
			if out[i].ID == e.ID {
				e.Candidate = out[i].Candidate
				out[i] = e
				return byPosition(out), nil
			}
		}
		// Unknown row: its insert was lost, so read everything.
		return s.fetch(e.LiveEventID)(ctx)

	case model.OpDelete:
		return slices.DeleteFunc(slices.Clone(cur), func(e model.LineupEntry) bool { return e.ID == c.ID }), nil
	}
	return cur, nil
}

// Current returns the performing entry, if any.
func (s *LineupSync) Current() (model.LineupEntry, bool) {
	entries, _ := s.Value()
	for _, e := range entries {
		if e.Status == model.EntryPerforming {
			return e, true
		}
	}
	return model.LineupEntry{}, false
}

// VoteTallySync counts public votes per candidate. Each pushed vote bumps a
// counter; every poll replaces the counters with a full recount.
type VoteTallySync struct {
	*Watcher[map[string]int]
	seen dedupe.Deduper
}

// NewVoteTallySync counts the votes of sessionID.
func NewVoteTallySync(r Reader, sessionID string, opts ...Option) *VoteTallySync {
	s := &VoteTallySync{seen: dedupe.NewInMemoryDeduper()}
	s.Watcher = NewWatcher("vote_tally", func(ctx context.Context) (map[string]int, error) {
		t, err := r.VoteTally(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if t.Counts == nil {
			return map[string]int{}, nil
		}
		return t.Counts, nil
	}, opts...)
	s.Subscribe(model.ChangeFilter{
		Table: model.TablePublicVotes,
		Op:    model.OpInsert,
		Key:   "session_id",
		Value: sessionID,
	}, s.apply)
	return s
}

func (s *VoteTallySync) apply(ctx context.Context, cur map[string]int, c model.Change) (map[string]int, error) {
	if s.seen.SeenAndRecord(ctx, c.ID) {
		return cur, nil
	}
	candidate := c.Keys["candidate_id"]
	if candidate == "" {
		if v, ok := decodeRow[model.PublicVote](c); ok {
			candidate = v.CandidateID
		}
	}
	if candidate == "" {
		return nil, errors.New("vote change without candidate " + c.ID)
	}
	out := maps.Clone(cur)
	if out == nil {
		out = map[string]int{}
	}
	out[candidate]++
	return out, nil
}

// Toast is a transient control room notice about a jury score.
type Toast struct {
	JurorID     string
	CandidateID string
	Total       float64
	Updated     bool
}

// JuryNotificationSync watches jury scores and raises a Toast for each
// pushed score once the initial read is done.
type JuryNotificationSync struct {
	*Watcher[[]model.JuryScore]
	sessionID string
	eventType model.EventType
	onToast   func(Toast)
}

// NewJuryNotificationSync watches scores of eventType in one session. A
// non-empty jurorID narrows both the read and the subscription to that juror.
func NewJuryNotificationSync(r Reader, sessionID string, eventType model.EventType, jurorID string,
	onToast func(Toast), opts ...Option,
) *JuryNotificationSync {
	s := &JuryNotificationSync{sessionID: sessionID, eventType: eventType, onToast: onToast}
	f := repository.ScoreFilter{SessionID: sessionID, EventType: eventType, JurorID: jurorID}
	s.Watcher = NewWatcher("jury_scores", func(ctx context.Context) ([]model.JuryScore, error) {
		scores, err := r.JuryScores(ctx, f)
		if err != nil {
			return nil, err
		}
		return byScoreID(scores), nil
	}, opts...)

	filter := model.ChangeFilter{Table: model.TableJuryScores, Key: "session_id", Value: sessionID}
	if jurorID != "" {
		filter = model.ChangeFilter{Table: model.TableJuryScores, Key: "juror_id", Value: jurorID}
	}
	s.Subscribe(filter, s.apply)
	return s
}

func byScoreID(scores []model.JuryScore) []model.JuryScore {
	out := slices.Clone(scores)
	if out == nil {
		out = []model.JuryScore{}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// scoped reports whether c belongs to the watched session and event type.
func (s *JuryNotificationSync) scoped(c model.Change) bool {
	if s.eventType != "" && c.Keys["event_type"] != string(s.eventType) {
		return false
	}
	return s.sessionID == "" || c.Keys["session_id"] == s.sessionID
}

func (s *JuryNotificationSync) apply(_ context.Context, cur []model.JuryScore, c model.Change) ([]model.JuryScore, error) {
	if !s.scoped(c) {
		return cur, nil
	}
	if c.Op == model.OpDelete {
		return slices.DeleteFunc(slices.Clone(cur), func(sc model.JuryScore) bool { return sc.ID == c.ID }), nil
	}
	sc, ok := decodeRow[model.JuryScore](c)
	if !ok {
		return nil, errors.New("undecodable jury score " + c.ID)
	}
	out := slices.Clone(cur)
	replaced := false
	for i := range out {
		if out[i].ID == sc.ID {
			if out[i].TotalScore == sc.TotalScore && maps.Equal(out[i].Scores, sc.Scores) {
				return cur, nil
			}
			out[i] = sc
			replaced = true
			break
		}
	}
	if !replaced {
		out = append(out, sc)
	}
	if s.onToast != nil {
		s.onToast(Toast{
			JurorID:     sc.JurorID,
			CandidateID: sc.CandidateID,
			Total:       sc.TotalScore,
			Updated:     replaced || c.Op == model.OpUpdate,
		})
	}
	return byScoreID(out), nil
}

// RankingSync recomputes the ranking on every poll and on Refresh.
type RankingSync struct {
	*Watcher[types.RankingResponse]
}

// NewRankingSync watches the ranking of a session and event type.
func NewRankingSync(r Reader, sessionID string, eventType model.EventType, category string, opts ...Option) *RankingSync {
	return &RankingSync{Watcher: NewWatcher("ranking", func(ctx context.Context) (types.RankingResponse, error) {
		return r.Ranking(ctx, sessionID, eventType, category)
	}, opts...)}
}

// EventDiscoverySync finds the active event of a session before its id is
// known, from event inserts or from polling the active event.
type EventDiscoverySync struct {
	*Watcher[string]
	eventType model.EventType
}

// NewEventDiscoverySync looks for the active eventType event of sessionID.
func NewEventDiscoverySync(r Reader, sessionID string, eventType model.EventType, opts ...Option) *EventDiscoverySync {
	s := &EventDiscoverySync{eventType: eventType}
	s.Watcher = NewWatcher("event_discovery", func(ctx context.Context) (string, error) {
		ev, err := r.ActiveEvent(ctx, sessionID, eventType)
		if errors.Is(err, model.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return ev.ID, nil
	}, opts...)
	s.Subscribe(model.ChangeFilter{
		Table: model.TableLiveEvents,
		Op:    model.OpInsert,
		Key:   "session_id",
		Value: sessionID,
	}, s.apply)
	return s
}

func (s *EventDiscoverySync) apply(_ context.Context, cur string, c model.Change) (string, error) {
	if cur != "" {
		return cur, nil
	}
	if c.Keys["event_type"] == string(s.eventType) {
		return c.ID, nil
	}
	if ev, ok := decodeRow[model.LiveEvent](c); ok && ev.EventType == s.eventType {
		return ev.ID, nil
	}
	return cur, nil
}

// Discover runs until the event is found or ctx ends.
func (s *EventDiscoverySync) Discover(ctx context.Context) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	found := make(chan string, 1)
	s.OnChange(func(id string) {
		if id != "" {
			select {
			case found <- id:
			default:
			}
			cancel()
		}
	})
	s.Run(ctx)
	select {
	case id := <-found:
		return id, nil
	default:
		return "", ctx.Err()
	}
}
