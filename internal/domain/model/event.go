// Package model contains domain models passed between layers.
package model

import "time"

// EventType distinguishes the two live rounds of a session.
type EventType string

const (
	EventSemifinal EventType = "semifinal"
	EventFinal     EventType = "final"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventSemifinal || t == EventFinal
}

// EventStatus is the lifecycle of a live event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventLive      EventStatus = "live"
	EventPaused    EventStatus = "paused"
	EventCompleted EventStatus = "completed"
)

// CanTransitionEvent reports whether a live event may move from one status to another.
// Completed is terminal.
func CanTransitionEvent(from, to EventStatus) bool {
	switch from {
	case EventPending:
		return to == EventLive || to == EventCompleted
	case EventLive:
		return to == EventPaused || to == EventCompleted
	case EventPaused:
		return to == EventLive || to == EventCompleted
	default:
		return false
	}
}

// LiveEvent is one semifinal or final being run in front of an audience.
// CurrentCandidateID is the single source of truth for "who is on stage".
type LiveEvent struct {
	ID                 string      `json:"id"`
	SessionID          string      `json:"session_id"`
	EventType          EventType   `json:"event_type"`
	Status             EventStatus `json:"status"`
	CurrentCandidateID *string     `json:"current_candidate_id"`
	IsVotingOpen       bool        `json:"is_voting_open"`
	WinnerCandidateID  *string     `json:"winner_candidate_id"`
	WinnerRevealedAt   *time.Time  `json:"winner_revealed_at"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Terminal reports whether the event accepts no further changes.
func (e *LiveEvent) Terminal() bool {
	return e.Status == EventCompleted
}

// CandidateStatus tracks a candidate's progress through the competition.
type CandidateStatus string

const (
	CandidatePending      CandidateStatus = "pending"
	CandidateApproved     CandidateStatus = "approved"
	CandidateSemifinalist CandidateStatus = "semifinalist"
	CandidateFinalist     CandidateStatus = "finalist"
	CandidateWinner       CandidateStatus = "winner"
)

// QualifiedStatus is the status a candidate holds while competing in an event of type t.
func QualifiedStatus(t EventType) CandidateStatus {
	if t == EventFinal {
		return CandidateFinalist
	}
	return CandidateSemifinalist
}

// Candidate is a registered performer.
type Candidate struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	StageName string          `json:"stage_name"`
	Category  string          `json:"category"`
	Status    CandidateStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Juror is a jury member allowed to score within a session.
type Juror struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Weights are the configured percentages of each ranking source.
type Weights struct {
	Jury   float64 `json:"jury"`
	Public float64 `json:"public"`
	Social float64 `json:"social"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Jury + w.Public + w.Social
}
