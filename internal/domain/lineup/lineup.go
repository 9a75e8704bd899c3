// Package lineup plans transitions of a live event's performer lineup.
//
// Planners are pure: they take a freshly read lineup and return the rows to
// write together with the new current performer. The caller applies a Plan
// inside the same transaction that read the lineup.
package lineup

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

// Plan is the outcome of one sequencer operation.
type Plan struct {
	// Updates are the modified entries, in the order they must be written.
	// A completion always precedes a promotion.
	Updates []model.LineupEntry
	// Insert is a new entry to create, if any.
	Insert *model.LineupEntry
	// Current is the event's new current candidate when CurrentChanged is set.
	Current        *string
	CurrentChanged bool
}

func (p *Plan) setCurrent(id *string) {
	p.Current = id
	p.CurrentChanged = true
}

// Sorted returns a copy of entries ordered by position.
func Sorted(entries []model.LineupEntry) []model.LineupEntry {
	out := slices.Clone(entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Performing returns the entry currently on stage.
func Performing(entries []model.LineupEntry) (model.LineupEntry, bool) {
	for _, e := range entries {
		if e.Status == model.EntryPerforming {
			return e, true
		}
	}
	return model.LineupEntry{}, false
}

// Validate checks that at most one entry is performing.
func Validate(entries []model.LineupEntry) error {
	n := 0
	for _, e := range entries {
		if e.Status == model.EntryPerforming {
			n++
		}
	}
	if n > 1 {
		return model.NewKind("lineup.validate", model.ErrPreconditionFailed,
			fmt.Sprintf("%d entries performing", n))
	}
	return nil
}

func find(entries []model.LineupEntry, entryID string) (int, bool) {
	for i := range entries {
		if entries[i].ID == entryID {
			return i, true
		}
	}
	return -1, false
}

func stamp(t time.Time) *time.Time { return &t }

func complete(e model.LineupEntry, now time.Time) model.LineupEntry {
	e.Status = model.EntryCompleted
	if e.EndedAt == nil {
		e.EndedAt = stamp(now)
	}
	if e.VoteOpenedAt == nil {
		e.VoteOpenedAt = stamp(now)
	}
	e.VoteClosedAt = stamp(now)
	return e
}

func startPerforming(e model.LineupEntry, now time.Time) model.LineupEntry {
	e.Status = model.EntryPerforming
	e.StartedAt = stamp(now)
	e.EndedAt = nil
	e.VoteOpenedAt = nil
	e.VoteClosedAt = nil
	return e
}

// PlanAdvance completes the current performer and promotes the next pending
// entry by position. Absent and completed entries are skipped.
func PlanAdvance(entries []model.LineupEntry, now time.Time) (Plan, error) {
	const op = "lineup.advance"
	var p Plan
	if len(entries) == 0 {
		return p, model.NewKind(op, model.ErrPreconditionFailed, "lineup is empty")
	}
	if err := Validate(entries); err != nil {
		return p, err
	}

	ordered := Sorted(entries)
	current, performing := Performing(ordered)

	var next *model.LineupEntry
	for i := range ordered {
		if ordered[i].Status == model.EntryPending {
			next = &ordered[i]
			break
		}
	}

	if !performing && next == nil {
		return p, model.NewKind(op, model.ErrPreconditionFailed, "lineup exhausted")
	}

	if performing {
		p.Updates = append(p.Updates, complete(current, now))
	}
	if next == nil {
		p.setCurrent(nil)
		return p, nil
	}
	promoted := startPerforming(*next, now)
	p.Updates = append(p.Updates, promoted)
	id := promoted.CandidateID
	p.setCurrent(&id)
	return p, nil
}

// PlanMarkAbsent marks an entry absent. When the entry was on stage the
// current pointer is cleared; the next performer is not promoted.
func PlanMarkAbsent(entries []model.LineupEntry, entryID string, now time.Time) (Plan, error) {
	const op = "lineup.mark_absent"
	var p Plan
	i, ok := find(entries, entryID)
	if !ok {
		return p, model.NewKind(op, model.ErrNotFound, "lineup entry "+entryID)
	}
	e := entries[i]
	if e.Status == model.EntryAbsent {
		return p, nil
	}
	if !model.CanTransition(e.Status, model.EntryAbsent) {
		return p, model.NewKind(op, model.ErrPreconditionFailed,
			fmt.Sprintf("cannot mark a %s entry absent", e.Status))
	}
	wasPerforming := e.Status == model.EntryPerforming
	e.Status = model.EntryAbsent
	if wasPerforming {
		e.EndedAt = stamp(now)
		if e.VoteOpenedAt != nil && e.VoteClosedAt == nil {
			e.VoteClosedAt = stamp(now)
		}
		p.setCurrent(nil)
	}
	p.Updates = append(p.Updates, e)
	return p, nil
}

// PlanReplay puts a completed or absent entry back on stage. Its position is
// unchanged. Replaying while someone else performs is refused.
func PlanReplay(entries []model.LineupEntry, entryID string, now time.Time) (Plan, error) {
	const op = "lineup.replay"
	var p Plan
	i, ok := find(entries, entryID)
	if !ok {
		return p, model.NewKind(op, model.ErrNotFound, "lineup entry "+entryID)
	}
	e := entries[i]
	if cur, performing := Performing(entries); performing && cur.ID != e.ID {
		return p, model.NewKind(op, model.ErrPreconditionFailed,
			"another candidate is performing, advance or mark them absent first")
	}
	if !model.CanTransition(e.Status, model.EntryPerforming) || e.Status == model.EntryPending {
		return p, model.NewKind(op, model.ErrPreconditionFailed,
			fmt.Sprintf("cannot replay a %s entry", e.Status))
	}
	e = startPerforming(e, now)
	p.Updates = append(p.Updates, e)
	id := e.CandidateID
	p.setCurrent(&id)
	return p, nil
}

// PlanReorder assigns positions 1..N following candidateIDs, which must be a
// permutation of the lineup's candidates. Statuses are untouched.
func PlanReorder(entries []model.LineupEntry, candidateIDs []string) (Plan, error) {
	const op = "lineup.reorder"
	var p Plan
	if len(candidateIDs) != len(entries) {
		return p, model.NewKind(op, model.ErrPreconditionFailed,
			fmt.Sprintf("order lists %d candidates, lineup has %d", len(candidateIDs), len(entries)))
	}
	byCandidate := make(map[string]model.LineupEntry, len(entries))
	for _, e := range entries {
		byCandidate[e.CandidateID] = e
	}
	seen := make(map[string]struct{}, len(candidateIDs))
	for i, id := range candidateIDs {
		e, ok := byCandidate[id]
		if !ok {
			return p, model.NewKind(op, model.ErrPreconditionFailed, "candidate "+id+" is not in the lineup")
		}
		if _, dup := seen[id]; dup {
			return p, model.NewKind(op, model.ErrPreconditionFailed, "candidate "+id+" listed twice")
		}
		seen[id] = struct{}{}
		if e.Position != i+1 {
			e.Position = i + 1
			p.Updates = append(p.Updates, e)
		}
	}
	return p, nil
}

// PlanInsert adds candidateID as a pending entry. A position of zero or past
// the end appends; otherwise entries at or after position move down by one.
func PlanInsert(entries []model.LineupEntry, eventID, entryID, candidateID string, position int) (Plan, error) {
	const op = "lineup.insert"
	var p Plan
	for _, e := range entries {
		if e.CandidateID == candidateID {
			return p, model.NewKind(op, model.ErrDuplicateEntry, "candidate "+candidateID+" is already in the lineup")
		}
	}

	last := 0
	for _, e := range entries {
		last = max(last, e.Position)
	}
	if position <= 0 || position > last {
		position = last + 1
	} else {
		// Shift from the back so positions stay unique at every step.
		ordered := Sorted(entries)
		for i := len(ordered) - 1; i >= 0; i-- {
			if ordered[i].Position >= position {
				e := ordered[i]
				e.Position++
				p.Updates = append(p.Updates, e)
			}
		}
	}
	p.Insert = &model.LineupEntry{
		ID:          entryID,
		LiveEventID: eventID,
		CandidateID: candidateID,
		Position:    position,
		Status:      model.EntryPending,
	}
	return p, nil
}
