// Package types contains the JSON request and response bodies shared by the
// HTTP API and its clients.
package types

import (
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

// ActionResult is the tagged outcome of a control room action: either
// {"success":true} or {"error":"message"}, never both.
type ActionResult struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK is the success result.
func OK() ActionResult { return ActionResult{Success: true} }

// Failed is the error result.
func Failed(msg string) ActionResult { return ActionResult{Error: msg} }

// CreateEventRequest opens a live event for a session.
type CreateEventRequest struct {
	EventType model.EventType `json:"event_type"`
}

// StatusRequest moves a live event through its lifecycle.
type StatusRequest struct {
	Status model.EventStatus `json:"status"`
}

// ReorderRequest lists every lineup candidate in the new running order.
type ReorderRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
}

// InsertRequest adds a replacement performer. Position 0 appends.
type InsertRequest struct {
	CandidateID string `json:"candidate_id"`
	Position    int    `json:"position,omitempty"`
}

// CheckinRequest is sent by a performer arriving backstage.
type CheckinRequest struct {
	CandidateID string `json:"candidate_id"`
}

// RevealRequest names the winner to reveal.
type RevealRequest struct {
	CandidateID string `json:"candidate_id"`
}

// VoteRequest is one audience vote. LiveEventID ties it to the on-stage window.
type VoteRequest struct {
	CandidateID string `json:"candidate_id"`
	Fingerprint string `json:"fingerprint"`
	LiveEventID string `json:"live_event_id,omitempty"`
}

// VoteReceipt acknowledges a vote. Duplicate votes are accepted and not counted.
type VoteReceipt struct {
	VoteID    string `json:"vote_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// ShareRequest records a social engagement for a candidate.
type ShareRequest struct {
	CandidateID string `json:"candidate_id"`
	Platform    string `json:"platform"`
}

// JuryScoreRequest submits or overwrites a juror's criteria scores.
type JuryScoreRequest struct {
	JurorID     string             `json:"juror_id"`
	CandidateID string             `json:"candidate_id"`
	EventType   model.EventType    `json:"event_type"`
	Scores      map[string]float64 `json:"scores"`
	Comment     string             `json:"comment,omitempty"`
}

// CandidateRequest registers a candidate for a session.
type CandidateRequest struct {
	StageName string                `json:"stage_name"`
	Category  string                `json:"category,omitempty"`
	Status    model.CandidateStatus `json:"status,omitempty"`
}

// JurorRequest registers a juror for a session.
type JurorRequest struct {
	Name string `json:"name"`
}

// JurorRegistration returns the new juror and its scoring token.
type JurorRegistration struct {
	Juror     model.Juror `json:"juror"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// AdminAuthRequest exchanges the control room key for a token.
type AdminAuthRequest struct {
	Key string `json:"key"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RankingResponse is a computed ranking for one scope.
type RankingResponse struct {
	SessionID string          `json:"session_id"`
	EventType model.EventType `json:"event_type,omitempty"`
	Category  string          `json:"category,omitempty"`
	Weights   model.Weights   `json:"weights"`
	Rankings  []model.Ranking `json:"rankings"`
}

// TallyResponse is the public vote count per candidate.
type TallyResponse struct {
	SessionID string         `json:"session_id"`
	Counts    map[string]int `json:"counts"`
}

// Stats is the /stats payload.
type Stats struct {
	Uptime          string `json:"uptime"`
	ActiveEvents    int    `json:"active_events"`
	FeedSubscribers int    `json:"feed_subscribers"`
	NotifyQueued    int    `json:"notify_queued"`
	NotifyCapacity  int    `json:"notify_capacity"`
	NotifyWorkers   int    `json:"notify_workers"`
}
