package repository

// Timestamps are unix milliseconds and booleans are 0/1 so the same schema
// runs on SQLite and PostgreSQL.
var schema = []string{ //nolint:gochecknoglobals // static DDL
	`CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		stage_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_candidates_session ON candidates(session_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS jurors (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS live_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL CHECK (event_type IN ('semifinal', 'final')),
		status TEXT NOT NULL CHECK (status IN ('pending', 'live', 'paused', 'completed')),
		current_candidate_id TEXT,
		is_voting_open INTEGER NOT NULL DEFAULT 0,
		winner_candidate_id TEXT,
		winner_revealed_at BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_live_events_active
		ON live_events(session_id, event_type) WHERE status <> 'completed'`,

	`CREATE TABLE IF NOT EXISTS lineup_entries (
		id TEXT PRIMARY KEY,
		live_event_id TEXT NOT NULL REFERENCES live_events(id) ON DELETE CASCADE,
		candidate_id TEXT NOT NULL REFERENCES candidates(id),
		position INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'performing', 'completed', 'absent')),
		started_at BIGINT,
		ended_at BIGINT,
		vote_opened_at BIGINT,
		vote_closed_at BIGINT,
		UNIQUE (live_event_id, candidate_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_lineup_single_performer
		ON lineup_entries(live_event_id) WHERE status = 'performing'`,

	`CREATE TABLE IF NOT EXISTS jury_scores (
		id TEXT PRIMARY KEY,
		juror_id TEXT NOT NULL REFERENCES jurors(id),
		candidate_id TEXT NOT NULL REFERENCES candidates(id),
		event_type TEXT NOT NULL,
		scores TEXT NOT NULL,
		total_score DOUBLE PRECISION NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL,
		UNIQUE (juror_id, candidate_id, event_type)
	)`,

	`CREATE TABLE IF NOT EXISTS public_votes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		candidate_id TEXT NOT NULL REFERENCES candidates(id),
		fingerprint TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (candidate_id, fingerprint)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_public_votes_session ON public_votes(session_id)`,

	`CREATE TABLE IF NOT EXISTS social_shares (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		candidate_id TEXT NOT NULL REFERENCES candidates(id),
		platform TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_social_shares_session ON social_shares(session_id)`,

	`CREATE TABLE IF NOT EXISTS scoring_weights (
		session_id TEXT PRIMARY KEY,
		jury_weight DOUBLE PRECISION NOT NULL,
		public_weight DOUBLE PRECISION NOT NULL,
		social_weight DOUBLE PRECISION NOT NULL
	)`,
}
