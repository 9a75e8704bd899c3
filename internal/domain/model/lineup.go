package model

import "time"

// EntryStatus is the state of one slot in a lineup.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryPerforming EntryStatus = "performing"
	EntryCompleted  EntryStatus = "completed"
	EntryAbsent     EntryStatus = "absent"
)

// CanTransition is the single authority on lineup entry status changes.
//
//	pending    -> performing | absent
//	performing -> completed  | absent
//	completed  -> performing (replay)
//	absent     -> performing (replay)
func CanTransition(from, to EntryStatus) bool {
	switch from {
	case EntryPending:
		return to == EntryPerforming || to == EntryAbsent
	case EntryPerforming:
		return to == EntryCompleted || to == EntryAbsent
	case EntryCompleted, EntryAbsent:
		return to == EntryPerforming
	default:
		return false
	}
}

// LineupEntry is one candidate's slot within a live event.
// Candidate is filled on the read side only.
type LineupEntry struct {
	ID           string      `json:"id"`
	LiveEventID  string      `json:"live_event_id"`
	CandidateID  string      `json:"candidate_id"`
	Position     int         `json:"position"`
	Status       EntryStatus `json:"status"`
	StartedAt    *time.Time  `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at"`
	VoteOpenedAt *time.Time  `json:"vote_opened_at"`
	VoteClosedAt *time.Time  `json:"vote_closed_at"`
	Candidate    *Candidate  `json:"candidate,omitempty"`
}
