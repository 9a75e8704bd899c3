package model

// Tables carried on the change feed.
const (
	TableLiveEvents    = "live_events"
	TableLineupEntries = "lineup_entries"
	TableJuryScores    = "jury_scores"
	TablePublicVotes   = "public_votes"
	TableSocialShares  = "social_shares"
	TableCandidates    = "candidates"
	TableWeights       = "scoring_weights"
)

// ChangeOp is the kind of row change.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Change is a row-level notification emitted after a write commits.
// Keys holds the filterable columns of the row (id, live_event_id, session_id, ...).
type Change struct {
	Table string            `json:"table"`
	Op    ChangeOp          `json:"op"`
	ID    string            `json:"id"`
	Keys  map[string]string `json:"keys,omitempty"`
	Row   any               `json:"row,omitempty"`
}

// ChangeFilter selects changes of one table, optionally one op, optionally
// rows whose Key column equals Value.
type ChangeFilter struct {
	Table string
	Op    ChangeOp
	Key   string
	Value string
}

// Matches reports whether c passes the filter. Zero fields match anything.
func (f ChangeFilter) Matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if f.Op != "" && f.Op != c.Op {
		return false
	}
	if f.Key == "" {
		return true
	}
	if f.Key == "id" {
		return c.ID == f.Value
	}
	return c.Keys[f.Key] == f.Value
}
