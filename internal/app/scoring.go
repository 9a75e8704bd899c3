package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

// sessionCandidate loads a candidate and checks it belongs to sessionID.
func (s *Service) sessionCandidate(ctx context.Context, r repository.Reader, op, sessionID, candidateID string) (model.Candidate, error) {
	c, err := r.GetCandidate(ctx, candidateID)
	if err != nil {
		return c, err
	}
	if c.SessionID != sessionID {
		return c, model.NewKind(op, model.ErrPreconditionFailed,
			fmt.Sprintf("candidate %s belongs to another session", candidateID))
	}
	return c, nil
}

// CastVote records one audience vote. A device voting twice for the same
// candidate gets a duplicate receipt and the count does not move.
func (s *Service) CastVote(ctx context.Context, sessionID string, req types.VoteRequest) (types.VoteReceipt, error) {
	const op = "service.cast_vote"
	if req.CandidateID == "" || strings.TrimSpace(req.Fingerprint) == "" {
		return types.VoteReceipt{}, s.finish(ctx, "cast_vote",
			model.NewKind(op, model.ErrInvalidInput, "candidate id and fingerprint are required"))
	}
	if _, err := s.sessionCandidate(ctx, s.store, op, sessionID, req.CandidateID); err != nil {
		return types.VoteReceipt{}, s.finish(ctx, "cast_vote", err)
	}
	if req.LiveEventID != "" {
		ev, err := s.store.GetEvent(ctx, req.LiveEventID)
		if err != nil {
			return types.VoteReceipt{}, s.finish(ctx, "cast_vote", err)
		}
		switch {
		case ev.SessionID != sessionID:
			err = model.NewKind(op, model.ErrPreconditionFailed, "live event belongs to another session")
		case !ev.IsVotingOpen:
			err = model.NewKind(op, model.ErrPreconditionFailed, "voting is closed")
		case ev.CurrentCandidateID == nil || *ev.CurrentCandidateID != req.CandidateID:
			err = model.NewKind(op, model.ErrPreconditionFailed, "candidate is not on stage")
		}
		if err != nil {
			return types.VoteReceipt{}, s.finish(ctx, "cast_vote", err)
		}
	}

	vote := model.PublicVote{
		ID:          s.newID(),
		SessionID:   sessionID,
		CandidateID: req.CandidateID,
		Fingerprint: strings.TrimSpace(req.Fingerprint),
		CreatedAt:   s.clock(),
	}
	var duplicate bool
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		duplicate, err = tx.InsertVote(ctx, vote)
		return err
	})
	if err != nil {
		return types.VoteReceipt{}, s.finish(ctx, "cast_vote", err)
	}
	if duplicate {
		metrics.RecordVoteDuplicate()
		return types.VoteReceipt{Duplicate: true}, s.finish(ctx, "cast_vote", nil)
	}
	metrics.RecordVoteAccepted()
	return types.VoteReceipt{VoteID: vote.ID}, s.finish(ctx, "cast_vote", nil)
}

// SubmitJuryScore writes or overwrites the caller's score for a candidate.
func (s *Service) SubmitJuryScore(ctx context.Context, req types.JuryScoreRequest) (model.JuryScore, error) {
	const op = "service.submit_jury_score"
	if !auth.FromContext(ctx).IsJuror(req.JurorID) {
		return model.JuryScore{}, s.finish(ctx, "submit_jury_score",
			model.NewKind(op, model.ErrUnauthorized, "jurors can only score as themselves"))
	}
	if !req.EventType.Valid() {
		return model.JuryScore{}, s.finish(ctx, "submit_jury_score",
			model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("invalid event type %q", req.EventType)))
	}
	sheet, err := s.scorecard.Score(op, req.Scores)
	if err != nil {
		return model.JuryScore{}, s.finish(ctx, "submit_jury_score", err)
	}

	score := model.JuryScore{
		ID:          s.newID(),
		JurorID:     req.JurorID,
		CandidateID: req.CandidateID,
		EventType:   req.EventType,
		Scores:      req.Scores,
		TotalScore:  sheet.Total,
		Comment:     req.Comment,
		UpdatedAt:   s.clock(),
	}
	var created bool
	err = s.store.Tx(ctx, func(tx repository.Tx) error {
		j, err := tx.GetJuror(ctx, req.JurorID)
		if err != nil {
			return err
		}
		if !j.Active {
			return model.NewKind(op, model.ErrUnauthorized, "juror "+j.ID+" is inactive")
		}
		if _, err := s.sessionCandidate(ctx, tx, op, j.SessionID, req.CandidateID); err != nil {
			return err
		}
		score.SessionID = j.SessionID
		score.ID, created, err = tx.UpsertJuryScore(ctx, score)
		return err
	})
	if err != nil {
		return model.JuryScore{}, s.finish(ctx, "submit_jury_score", err)
	}
	if created {
		metrics.RecordJuryScore("created")
	} else {
		metrics.RecordJuryScore("updated")
	}
	return score, s.finish(ctx, "submit_jury_score", nil)
}

// ResetJuryScores deletes jury scores of an event type, for one candidate or
// for the whole session.
func (s *Service) ResetJuryScores(ctx context.Context, sessionID, candidateID string, eventType model.EventType) (int64, error) {
	const op = "service.reset_jury_scores"
	if err := auth.RequireAdmin(ctx, op); err != nil {
		return 0, s.finish(ctx, "reset_jury_scores", err)
	}
	if sessionID == "" && candidateID == "" {
		return 0, s.finish(ctx, "reset_jury_scores",
			model.NewKind(op, model.ErrInvalidInput, "a session or a candidate is required"))
	}
	if eventType != "" && !eventType.Valid() {
		return 0, s.finish(ctx, "reset_jury_scores",
			model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("invalid event type %q", eventType)))
	}
	var n int64
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.DeleteJuryScores(ctx, repository.ScoreFilter{
			SessionID:   sessionID,
			CandidateID: candidateID,
			EventType:   eventType,
		})
		return err
	})
	if err == nil {
		metrics.RecordJuryScore("deleted")
		s.log().Info(ctx, "jury scores reset",
			logger.String("sessionID", sessionID),
			logger.String("candidateID", candidateID),
			logger.Int("deleted", int(n)),
		)
	}
	return n, s.finish(ctx, "reset_jury_scores", err)
}

// RecordSocialShare counts one social engagement for a candidate.
func (s *Service) RecordSocialShare(ctx context.Context, sessionID string, req types.ShareRequest) error {
	const op = "service.record_share"
	if req.CandidateID == "" || req.Platform == "" {
		return s.finish(ctx, "record_share",
			model.NewKind(op, model.ErrInvalidInput, "candidate id and platform are required"))
	}
	if _, err := s.sessionCandidate(ctx, s.store, op, sessionID, req.CandidateID); err != nil {
		return s.finish(ctx, "record_share", err)
	}
	share := model.SocialShare{
		ID:          s.newID(),
		SessionID:   sessionID,
		CandidateID: req.CandidateID,
		Platform:    strings.ToLower(req.Platform),
		CreatedAt:   s.clock(),
	}
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.InsertShare(ctx, share)
	})
	if err == nil {
		metrics.RecordSocialShare()
	}
	return s.finish(ctx, "record_share", err)
}

// ranked reports whether a candidate competes in a ranking of eventType.
func ranked(c model.Candidate, eventType model.EventType) bool {
	switch eventType {
	case model.EventFinal:
		return c.Status == model.CandidateFinalist || c.Status == model.CandidateWinner
	case model.EventSemifinal:
		return c.Status == model.CandidateSemifinalist ||
			c.Status == model.CandidateFinalist ||
			c.Status == model.CandidateWinner
	default:
		return c.Status != model.CandidatePending
	}
}

// Weights returns the session's weights, or the defaults.
func (s *Service) Weights(ctx context.Context, sessionID string) (model.Weights, error) {
	w, ok, err := s.store.GetWeights(ctx, sessionID)
	if err != nil {
		return model.Weights{}, err
	}
	if !ok {
		return s.defaultWeights, nil
	}
	return w, nil
}

// Ranking computes the weighted ranking of a session. Jury scores are those of
// eventType; category narrows the scope and the normalization maxima with it.
func (s *Service) Ranking(ctx context.Context, sessionID string, eventType model.EventType, category string) (types.RankingResponse, error) {
	const op = "service.ranking"
	start := time.Now()
	defer func() {
		metrics.RecordRankingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if eventType != "" && !eventType.Valid() {
		return types.RankingResponse{}, model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("invalid event type %q", eventType))
	}
	resp := types.RankingResponse{SessionID: sessionID, EventType: eventType, Category: category}

	candidates, err := s.store.ListCandidates(ctx, sessionID)
	if err != nil {
		return resp, model.Wrap(op, err)
	}
	scores, err := s.store.ListJuryScores(ctx, repository.ScoreFilter{SessionID: sessionID, EventType: eventType})
	if err != nil {
		return resp, model.Wrap(op, err)
	}
	votes, err := s.store.CountVotes(ctx, sessionID)
	if err != nil {
		return resp, model.Wrap(op, err)
	}
	shares, err := s.store.CountShares(ctx, sessionID)
	if err != nil {
		return resp, model.Wrap(op, err)
	}
	if resp.Weights, err = s.Weights(ctx, sessionID); err != nil {
		return resp, model.Wrap(op, err)
	}

	byCandidate := make(map[string][]float64)
	for _, sc := range scores {
		byCandidate[sc.CandidateID] = append(byCandidate[sc.CandidateID], sc.TotalScore)
	}
	inputs := make([]ranking.Input, 0, len(candidates))
	for _, c := range candidates {
		if !ranked(c, eventType) || (category != "" && c.Category != category) {
			continue
		}
		inputs = append(inputs, ranking.Input{
			CandidateID: c.ID,
			StageName:   c.StageName,
			Category:    c.Category,
			JuryScores:  byCandidate[c.ID],
			PublicVotes: votes[c.ID],
			SocialVotes: shares[c.ID],
		})
	}

	resp.Rankings = s.aggregator.Compute(inputs, resp.Weights)
	if len(resp.Rankings) > s.rankingLimit {
		resp.Rankings = slices.Clip(resp.Rankings[:s.rankingLimit])
	}
	return resp, nil
}
