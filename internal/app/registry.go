package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// RegisterCandidate adds a candidate to a session. Registration proper lives
// outside this service; this is the seeding path used by the control room.
func (s *Service) RegisterCandidate(ctx context.Context, sessionID string, req types.CandidateRequest) (model.Candidate, error) {
	const op = "service.register_candidate"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return model.Candidate{}, s.finish(ctx, "register_candidate", err)
	}
	status := req.Status
	if status == "" {
		status = model.CandidateApproved
	}
	switch {
	case sessionID == "" || strings.TrimSpace(req.StageName) == "":
		return model.Candidate{}, s.finish(ctx, "register_candidate",
			model.NewKind(op, model.ErrInvalidInput, "session id and stage name are required"))
	case !validCandidateStatus(status):
		return model.Candidate{}, s.finish(ctx, "register_candidate",
			model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("invalid status %q", status)))
	}
	c := model.Candidate{
		ID:        s.newID(),
		SessionID: sessionID,
		StageName: strings.TrimSpace(req.StageName),
		Category:  req.Category,
		Status:    status,
		CreatedAt: s.clock(),
	}
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.InsertCandidate(ctx, c)
	})
	if err != nil {
		return model.Candidate{}, s.finish(ctx, "register_candidate", err)
	}
	return c, s.finish(ctx, "register_candidate", nil)
}

func validCandidateStatus(st model.CandidateStatus) bool {
	switch st {
	case model.CandidatePending, model.CandidateApproved, model.CandidateSemifinalist,
		model.CandidateFinalist, model.CandidateWinner:
		return true
	}
	return false
}

// RegisterJuror adds an active juror to a session.
func (s *Service) RegisterJuror(ctx context.Context, sessionID, name string) (model.Juror, error) {
	const op = "service.register_juror"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return model.Juror{}, s.finish(ctx, "register_juror", err)
	}
	if sessionID == "" || strings.TrimSpace(name) == "" {
		return model.Juror{}, s.finish(ctx, "register_juror",
			model.NewKind(op, model.ErrInvalidInput, "session id and name are required"))
	}
	j := model.Juror{
		ID:        s.newID(),
		SessionID: sessionID,
		Name:      strings.TrimSpace(name),
		Active:    true,
		CreatedAt: s.clock(),
	}
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.InsertJuror(ctx, j)
	})
	if err != nil {
		return model.Juror{}, s.finish(ctx, "register_juror", err)
	}
	return j, s.finish(ctx, "register_juror", nil)
}

// Event returns a live event.
func (s *Service) Event(ctx context.Context, eventID string) (model.LiveEvent, error) {
	return s.store.GetEvent(ctx, eventID)
}

// ActiveEvent returns the running event of a session and type.
func (s *Service) ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error) {
	if !eventType.Valid() {
		return model.LiveEvent{}, model.NewKind("service.active_event", model.ErrInvalidInput,
			fmt.Sprintf("invalid event type %q", eventType))
	}
	return s.store.ActiveEvent(ctx, sessionID, eventType)
}

// Lineup returns an event's entries by position with their candidates.
func (s *Service) Lineup(ctx context.Context, eventID string) ([]model.LineupEntry, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListLineup(ctx, eventID)
}

// Candidate returns one candidate.
func (s *Service) Candidate(ctx context.Context, candidateID string) (model.Candidate, error) {
	return s.store.GetCandidate(ctx, candidateID)
}

// Candidates lists a session's candidates.
func (s *Service) Candidates(ctx context.Context, sessionID string) ([]model.Candidate, error) {
	return s.store.ListCandidates(ctx, sessionID)
}

// VoteTally counts public votes per candidate.
func (s *Service) VoteTally(ctx context.Context, sessionID string) (types.TallyResponse, error) {
	counts, err := s.store.CountVotes(ctx, sessionID)
	if err != nil {
		return types.TallyResponse{}, err
	}
	return types.TallyResponse{SessionID: sessionID, Counts: counts}, nil
}

// EventTally counts public votes for the session an event belongs to.
func (s *Service) EventTally(ctx context.Context, eventID string) (types.TallyResponse, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return types.TallyResponse{}, err
	}
	return s.VoteTally(ctx, ev.SessionID)
}

// JuryScores lists scores. Jurors only see their own; the public sees none.
func (s *Service) JuryScores(ctx context.Context, f repository.ScoreFilter) ([]model.JuryScore, error) {
	id := auth.FromContext(ctx)
	switch id.Role {
	case auth.RoleAdmin:
	case auth.RoleJuror:
		f.JurorID = id.Subject
	default:
		return nil, model.NewKind("service.jury_scores", model.ErrUnauthorized, "jury scores are private")
	}
	return s.store.ListJuryScores(ctx, f)
}
