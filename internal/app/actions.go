package service

import (
	"context"
	"fmt"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/notify"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/lineup"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const weightTotal = 100

// withEvent locks the event and runs fn in one transaction. Terminal events
// are refused unless allowTerminal is set.
func (s *Service) withEvent(ctx context.Context, op, eventID string, allowTerminal bool,
	fn func(tx repository.Tx, ev *model.LiveEvent) error,
) error {
	return s.store.Tx(ctx, func(tx repository.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Terminal() && !allowTerminal {
			return model.NewKind(op, model.ErrPreconditionFailed, "live event is completed")
		}
		return fn(tx, &ev)
	})
}

// applyPlan writes a sequencer plan. The event pointer is rewritten in the
// same transaction so it never diverges from the performing row.
func applyPlan(ctx context.Context, tx repository.Tx, ev *model.LiveEvent, p lineup.Plan, now time.Time) error {
	for _, e := range p.Updates {
		if err := tx.UpdateLineupEntry(ctx, e); err != nil {
			return err
		}
	}
	if p.Insert != nil {
		if err := tx.InsertLineupEntry(ctx, *p.Insert); err != nil {
			return err
		}
	}
	if !p.CurrentChanged {
		return nil
	}
	ev.CurrentCandidateID = p.Current
	ev.IsVotingOpen = false
	ev.UpdatedAt = now
	return tx.UpdateEvent(ctx, *ev)
}

func stageName(entries []model.LineupEntry, candidateID string) string {
	for _, e := range entries {
		if e.CandidateID == candidateID && e.Candidate != nil {
			return e.Candidate.StageName
		}
	}
	return candidateID
}

// Advance completes the current performer and puts the next pending one on stage.
func (s *Service) Advance(ctx context.Context, eventID string) error {
	const op = "service.advance"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "advance", err)
	}
	var (
		ev      model.LiveEvent
		entries []model.LineupEntry
	)
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, locked *model.LiveEvent) error {
		var err error
		entries, err = tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		plan, err := lineup.PlanAdvance(entries, now)
		if err != nil {
			return err
		}
		if err := applyPlan(ctx, tx, locked, plan, now); err != nil {
			return err
		}
		ev = *locked
		return nil
	})
	if err != nil {
		return s.finish(ctx, "advance", err)
	}
	metrics.RecordLineupTransition("advance")
	if ev.CurrentCandidateID != nil {
		name := stageName(entries, *ev.CurrentCandidateID)
		s.log().Info(ctx, "performer on stage",
			logger.String("eventID", eventID),
			logger.String("candidateID", *ev.CurrentCandidateID),
		)
		s.notify(ctx, notify.Notification{
			SessionID: ev.SessionID,
			Role:      string(auth.RoleJuror),
			Title:     "Now on stage",
			Body:      name,
			URL:       "/jury/" + ev.ID,
			Tag:       "now-performing",
		})
	} else {
		s.log().Info(ctx, "lineup exhausted", logger.String("eventID", eventID))
	}
	return s.finish(ctx, "advance", nil)
}

// MarkAbsent marks a lineup entry absent. If it was on stage the current
// performer is cleared and nobody is promoted.
func (s *Service) MarkAbsent(ctx context.Context, eventID, entryID string) error {
	const op = "service.mark_absent"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "mark_absent", err)
	}
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, ev *model.LiveEvent) error {
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		plan, err := lineup.PlanMarkAbsent(entries, entryID, now)
		if err != nil {
			return err
		}
		return applyPlan(ctx, tx, ev, plan, now)
	})
	if err == nil {
		metrics.RecordLineupTransition("absent")
	}
	return s.finish(ctx, "mark_absent", err)
}

// SetReplay puts a completed or absent entry back on stage.
func (s *Service) SetReplay(ctx context.Context, eventID, entryID string) error {
	const op = "service.replay"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "replay", err)
	}
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, ev *model.LiveEvent) error {
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		plan, err := lineup.PlanReplay(entries, entryID, now)
		if err != nil {
			return err
		}
		return applyPlan(ctx, tx, ev, plan, now)
	})
	if err == nil {
		metrics.RecordLineupTransition("replay")
	}
	return s.finish(ctx, "replay", err)
}

// ReorderLineup renumbers the lineup to follow candidateIDs.
func (s *Service) ReorderLineup(ctx context.Context, eventID string, candidateIDs []string) error {
	const op = "service.reorder"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "reorder", err)
	}
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, ev *model.LiveEvent) error {
		if ev.WinnerCandidateID != nil {
			return model.NewKind(op, model.ErrPreconditionFailed, "winner already revealed")
		}
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		plan, err := lineup.PlanReorder(entries, candidateIDs)
		if err != nil {
			return err
		}
		return applyPlan(ctx, tx, ev, plan, now)
	})
	if err == nil {
		metrics.RecordLineupTransition("reorder")
	}
	return s.finish(ctx, "reorder", err)
}

// insertEntry adds candidateID to the lineup at position.
func (s *Service) insertEntry(ctx context.Context, op, eventID, candidateID string, position int) (model.LineupEntry, error) {
	var inserted model.LineupEntry
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, ev *model.LiveEvent) error {
		c, err := tx.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		if c.SessionID != ev.SessionID {
			return model.NewKind(op, model.ErrPreconditionFailed,
				fmt.Sprintf("candidate %s belongs to another session", candidateID))
		}
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		plan, err := lineup.PlanInsert(entries, eventID, s.newID(), candidateID, position)
		if err != nil {
			return err
		}
		if err := applyPlan(ctx, tx, ev, plan, now); err != nil {
			return err
		}
		inserted = *plan.Insert
		inserted.Candidate = &c
		return nil
	})
	return inserted, err
}

// AddReplacement inserts a pending entry for candidateID. Position 0 appends.
func (s *Service) AddReplacement(ctx context.Context, eventID, candidateID string, position int) (model.LineupEntry, error) {
	const op = "service.add_replacement"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return model.LineupEntry{}, s.finish(ctx, "add_replacement", err)
	}
	e, err := s.insertEntry(ctx, op, eventID, candidateID, position)
	if err == nil {
		metrics.RecordLineupTransition("insert")
	}
	return e, s.finish(ctx, "add_replacement", err)
}

// Checkin appends a performer who announces themself backstage. No identity
// is required; the event only has to be running.
func (s *Service) Checkin(ctx context.Context, eventID, candidateID string) (model.LineupEntry, error) {
	const op = "service.checkin"
	if candidateID == "" {
		return model.LineupEntry{}, s.finish(ctx, "checkin",
			model.NewKind(op, model.ErrInvalidInput, "candidate id is required"))
	}
	e, err := s.insertEntry(ctx, op, eventID, candidateID, 0)
	if err == nil {
		metrics.RecordLineupTransition("checkin")
		s.log().Info(ctx, "candidate checked in",
			logger.String("eventID", eventID),
			logger.String("candidateID", candidateID),
			logger.Int("position", e.Position),
		)
	}
	return e, s.finish(ctx, "checkin", err)
}

// RevealWinner publishes the winner. Repeating the call with the same
// candidate changes nothing; another candidate needs a reset first.
func (s *Service) RevealWinner(ctx context.Context, eventID, candidateID string) error {
	const op = "service.reveal"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "reveal", err)
	}
	var (
		ev      model.LiveEvent
		name    string
		changed bool
	)
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, true, func(tx repository.Tx, locked *model.LiveEvent) error {
		if cur := locked.WinnerCandidateID; cur != nil {
			if *cur == candidateID {
				ev = *locked
				return nil
			}
			return model.NewKind(op, model.ErrPreconditionFailed,
				"winner "+*cur+" already revealed, reset the reveal first")
		}
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		found := false
		for _, e := range entries {
			if e.CandidateID == candidateID {
				found = true
				break
			}
		}
		if !found {
			return model.NewKind(op, model.ErrNotFound, "candidate "+candidateID+" is not in the lineup")
		}

		id := candidateID
		locked.WinnerCandidateID = &id
		locked.WinnerRevealedAt = &now
		locked.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, *locked); err != nil {
			return err
		}
		if err := tx.UpdateCandidateStatus(ctx, candidateID, model.CandidateWinner); err != nil {
			return err
		}
		ev = *locked
		name = stageName(entries, candidateID)
		changed = true
		return nil
	})
	if err != nil {
		return s.finish(ctx, "reveal", err)
	}
	if !changed {
		metrics.RecordReveal("repeat")
		return s.finish(ctx, "reveal", nil)
	}

	metrics.RecordReveal("reveal")
	s.log().Info(ctx, "winner revealed",
		logger.String("eventID", eventID),
		logger.String("candidateID", candidateID),
		logger.Time("revealedAt", now),
	)
	s.notify(ctx, notify.Notification{
		SessionID: ev.SessionID,
		Role:      "all",
		Title:     "And the winner is...",
		Body:      name,
		URL:       "/live/" + ev.SessionID,
		Tag:       "winner-reveal",
	})
	return s.finish(ctx, "reveal", nil)
}

// ResetWinnerReveal clears the reveal and returns the candidate to the
// status it held while competing.
func (s *Service) ResetWinnerReveal(ctx context.Context, eventID string) error {
	const op = "service.reset_reveal"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "reset_reveal", err)
	}
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, true, func(tx repository.Tx, ev *model.LiveEvent) error {
		if ev.WinnerCandidateID == nil {
			return nil
		}
		prev := *ev.WinnerCandidateID
		ev.WinnerCandidateID = nil
		ev.WinnerRevealedAt = nil
		ev.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, *ev); err != nil {
			return err
		}
		return tx.UpdateCandidateStatus(ctx, prev, model.QualifiedStatus(ev.EventType))
	})
	if err == nil {
		metrics.RecordReveal("reset")
	}
	return s.finish(ctx, "reset_reveal", err)
}

// UpdateScoringWeights stores the session's ranking weights. They must add up to 100.
func (s *Service) UpdateScoringWeights(ctx context.Context, sessionID string, jury, public, social float64) error {
	const op = "service.update_weights"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "update_weights", err)
	}
	w := model.Weights{Jury: jury, Public: public, Social: social}
	switch {
	case sessionID == "":
		return s.finish(ctx, "update_weights", model.NewKind(op, model.ErrInvalidInput, "session id is required"))
	case jury < 0 || public < 0 || social < 0:
		return s.finish(ctx, "update_weights", model.NewKind(op, model.ErrPreconditionFailed, "weights must not be negative"))
	case w.Sum() != weightTotal:
		return s.finish(ctx, "update_weights", model.NewKind(op, model.ErrPreconditionFailed,
			fmt.Sprintf("weights add up to %g, expected %d", w.Sum(), weightTotal)))
	}
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.PutWeights(ctx, sessionID, w)
	})
	return s.finish(ctx, "update_weights", err)
}

// CreateEvent opens a live event. A session runs one active event per type.
func (s *Service) CreateEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error) {
	const op = "service.create_event"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return model.LiveEvent{}, s.finish(ctx, "create_event", err)
	}
	if sessionID == "" || !eventType.Valid() {
		return model.LiveEvent{}, s.finish(ctx, "create_event",
			model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("invalid session %q or event type %q", sessionID, eventType)))
	}
	now := s.clock()
	ev := model.LiveEvent{
		ID:        s.newID(),
		SessionID: sessionID,
		EventType: eventType,
		Status:    model.EventPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return model.LiveEvent{}, s.finish(ctx, "create_event", err)
	}
	s.log().Info(ctx, "live event created",
		logger.String("eventID", ev.ID),
		logger.String("sessionID", sessionID),
		logger.String("type", string(eventType)),
	)
	return ev, s.finish(ctx, "create_event", nil)
}

// SetEventStatus moves the event through pending, live, paused and completed.
// Completing clears the stage and closes voting.
func (s *Service) SetEventStatus(ctx context.Context, eventID string, status model.EventStatus) error {
	const op = "service.set_status"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, "set_status", err)
	}
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, ev *model.LiveEvent) error {
		if ev.Status == status {
			return nil
		}
		if !model.CanTransitionEvent(ev.Status, status) {
			return model.NewKind(op, model.ErrPreconditionFailed,
				fmt.Sprintf("cannot move a %s event to %s", ev.Status, status))
		}
		if status == model.EventCompleted {
			entries, err := tx.ListLineup(ctx, eventID)
			if err != nil {
				return err
			}
			if cur, ok := lineup.Performing(entries); ok {
				done := cur
				done.Status = model.EntryCompleted
				done.EndedAt = &now
				if done.VoteOpenedAt != nil && done.VoteClosedAt == nil {
					done.VoteClosedAt = &now
				}
				if err := tx.UpdateLineupEntry(ctx, done); err != nil {
					return err
				}
			}
			ev.CurrentCandidateID = nil
			ev.IsVotingOpen = false
		}
		ev.Status = status
		ev.UpdatedAt = now
		return tx.UpdateEvent(ctx, *ev)
	})
	return s.finish(ctx, "set_status", err)
}

// OpenVoting opens the public voting window for the current performer.
func (s *Service) OpenVoting(ctx context.Context, eventID string) error {
	return s.setVoting(ctx, eventID, true)
}

// CloseVoting closes the public voting window.
func (s *Service) CloseVoting(ctx context.Context, eventID string) error {
	return s.setVoting(ctx, eventID, false)
}

func (s *Service) setVoting(ctx context.Context, eventID string, open bool) error {
	op, action := "service.close_voting", "close_voting"
	if open {
		op, action = "service.open_voting", "open_voting"
	}
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return s.finish(ctx, action, err)
	}
	var (
		ev   model.LiveEvent
		name string
	)
	now := s.clock()
	err := s.withEvent(ctx, op, eventID, false, func(tx repository.Tx, locked *model.LiveEvent) error {
		if locked.IsVotingOpen == open {
			ev = *locked
			return nil
		}
		entries, err := tx.ListLineup(ctx, eventID)
		if err != nil {
			return err
		}
		cur, performing := lineup.Performing(entries)
		if open && !performing {
			return model.NewKind(op, model.ErrPreconditionFailed, "nobody is performing")
		}
		if performing {
			if open {
				cur.VoteOpenedAt = &now
				cur.VoteClosedAt = nil
			} else {
				cur.VoteClosedAt = &now
			}
			if err := tx.UpdateLineupEntry(ctx, cur); err != nil {
				return err
			}
			name = stageName(entries, cur.CandidateID)
		}
		locked.IsVotingOpen = open
		locked.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, *locked); err != nil {
			return err
		}
		ev = *locked
		return nil
	})
	if err != nil {
		return s.finish(ctx, action, err)
	}
	if open && name != "" {
		s.notify(ctx, notify.Notification{
			SessionID: ev.SessionID,
			Role:      string(auth.RolePublic),
			Title:     "Voting is open",
			Body:      name,
			URL:       "/live/" + ev.SessionID,
			Tag:       "voting-open",
		})
	}
	return s.finish(ctx, action, nil)
}
