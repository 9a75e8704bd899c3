package model

import "time"

// JuryScore is one juror's evaluation of one candidate for one event type.
// Rescoring overwrites the previous row.
type JuryScore struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"session_id"`
	JurorID     string             `json:"juror_id"`
	CandidateID string             `json:"candidate_id"`
	EventType   EventType          `json:"event_type"`
	Scores      map[string]float64 `json:"scores"`
	TotalScore  float64            `json:"total_score"`
	Comment     string             `json:"comment,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// PublicVote is an append-only audience vote. At most one per (candidate, fingerprint).
type PublicVote struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	CandidateID string    `json:"candidate_id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// SocialShare is one social engagement event counted by the ranking.
type SocialShare struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	CandidateID string    `json:"candidate_id"`
	Platform    string    `json:"platform"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ranking is the derived per-candidate composite. It is never persisted.
type Ranking struct {
	CandidateID      string  `json:"candidate_id"`
	StageName        string  `json:"stage_name,omitempty"`
	Category         string  `json:"category,omitempty"`
	JuryTotal        float64 `json:"jury_total"`
	JuryNormalized   float64 `json:"jury_normalized"`
	PublicVotes      int     `json:"public_votes"`
	PublicNormalized float64 `json:"public_normalized"`
	SocialVotes      int     `json:"social_votes"`
	SocialNormalized float64 `json:"social_normalized"`
	Total            float64 `json:"total"`
	Rank             int     `json:"rank"`
}
