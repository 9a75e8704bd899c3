// Package repository is the event state store: live events, lineups,
// candidates, jurors, scores, votes, shares and scoring weights.
package repository

import (
	"context"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

// ScoreFilter narrows ListJuryScores and DeleteJuryScores. Empty fields match all.
type ScoreFilter struct {
	SessionID   string
	JurorID     string
	CandidateID string
	EventType   model.EventType
}

// Reader provides the read side of the store.
type Reader interface {
	// GetEvent returns model.ErrNotFound for an unknown id.
	GetEvent(ctx context.Context, id string) (model.LiveEvent, error)
	// ActiveEvent returns the non-completed event of a session and type.
	ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error)
	// CountActiveEvents counts events that are not completed.
	CountActiveEvents(ctx context.Context) (int, error)

	// ListLineup returns the event's entries ordered by position, each with its candidate.
	ListLineup(ctx context.Context, eventID string) ([]model.LineupEntry, error)
	GetLineupEntry(ctx context.Context, id string) (model.LineupEntry, error)

	GetCandidate(ctx context.Context, id string) (model.Candidate, error)
	// ListCandidates returns a session's candidates in registration order.
	ListCandidates(ctx context.Context, sessionID string) ([]model.Candidate, error)
	GetJuror(ctx context.Context, id string) (model.Juror, error)

	ListJuryScores(ctx context.Context, f ScoreFilter) ([]model.JuryScore, error)
	// CountVotes returns public votes per candidate for a session.
	CountVotes(ctx context.Context, sessionID string) (map[string]int, error)
	// CountShares returns social shares per candidate for a session.
	CountShares(ctx context.Context, sessionID string) (map[string]int, error)
	// GetWeights returns the session's weights, or ok=false when none are configured.
	GetWeights(ctx context.Context, sessionID string) (w model.Weights, ok bool, err error)
}

// Tx is one store transaction. Every write is announced on the change feed
// after the transaction commits.
type Tx interface {
	Reader

	// LockEvent reads the event and holds it against concurrent writers until
	// the transaction ends.
	LockEvent(ctx context.Context, id string) (model.LiveEvent, error)
	// InsertEvent fails with model.ErrDuplicateEntry when the session already
	// has an active event of that type.
	InsertEvent(ctx context.Context, ev model.LiveEvent) error
	UpdateEvent(ctx context.Context, ev model.LiveEvent) error

	// InsertLineupEntry fails with model.ErrDuplicateEntry when the candidate is already in the lineup.
	InsertLineupEntry(ctx context.Context, e model.LineupEntry) error
	UpdateLineupEntry(ctx context.Context, e model.LineupEntry) error

	InsertCandidate(ctx context.Context, c model.Candidate) error
	UpdateCandidateStatus(ctx context.Context, id string, status model.CandidateStatus) error
	InsertJuror(ctx context.Context, j model.Juror) error

	// UpsertJuryScore writes or overwrites the (juror, candidate, event type)
	// row and returns the stored id and whether it was created.
	UpsertJuryScore(ctx context.Context, s model.JuryScore) (id string, created bool, err error)
	DeleteJuryScores(ctx context.Context, f ScoreFilter) (int64, error)

	// InsertVote stores a vote unless (candidate, fingerprint) already voted,
	// in which case duplicate is true and nothing is written.
	InsertVote(ctx context.Context, v model.PublicVote) (duplicate bool, err error)
	InsertShare(ctx context.Context, s model.SocialShare) error
	PutWeights(ctx context.Context, sessionID string, w model.Weights) error
}

// Store is the event state store.
type Store interface {
	Reader
	// Tx runs fn in a transaction. fn's error rolls back.
	Tx(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// ChangePublisher receives row changes after commit.
type ChangePublisher interface {
	Publish(ctx context.Context, changes ...model.Change)
}
