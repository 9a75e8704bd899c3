package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultMaxOpenConns = 10

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	queries
	db           *sql.DB
	publisher    ChangePublisher
	maxOpenConns int
}

var _ Store = (*SQLStore)(nil)

// Open connects to driver ("sqlite" or "postgres"), creates the schema and
// returns a ready store. SQLite is limited to one connection, which
// serializes every write.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	const op = "store.open"
	s := &SQLStore{maxOpenConns: defaultMaxOpenConns}
	for _, opt := range opts {
		opt(s)
	}

	switch driver {
	case DriverSQLite:
		s.dialect = dialectSQLite
	case DriverPostgres:
		s.dialect = dialectPostgres
	default:
		return nil, model.NewKind(op, model.ErrInvalidInput, "unsupported driver "+driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, classify(op, err)
	}
	if s.dialect == dialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify(op, err)
	}
	s.db = db
	s.q = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("store.migrate", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Tx runs fn in a transaction and publishes its changes after commit.
func (s *SQLStore) Tx(ctx context.Context, fn func(Tx) error) (err error) {
	defer observe("tx", time.Now(), &err)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("store.tx.begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	tx := &txStore{queries: queries{q: sqlTx, dialect: s.dialect}}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("store.tx.commit", err)
	}
	if s.publisher != nil && len(tx.changes) > 0 {
		s.publisher.Publish(ctx, tx.changes...)
	}
	return nil
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil && errors.Is(*err, model.ErrUpstreamUnavailable) {
		metrics.RecordStoreError(op)
	}
}

// queries implements Reader over any querier.
type queries struct {
	q       querier
	dialect dialect
}

// rebind turns ? placeholders into $N for PostgreSQL.
func (qs *queries) rebind(query string) string {
	if qs.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (qs *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return qs.q.ExecContext(ctx, qs.rebind(query), args...)
}

func (qs *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return qs.q.QueryContext(ctx, qs.rebind(query), args...)
}

func (qs *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return qs.q.QueryRowContext(ctx, qs.rebind(query), args...)
}

const eventCols = `id, session_id, event_type, status, current_candidate_id, is_voting_open,
	winner_candidate_id, winner_revealed_at, created_at, updated_at`

func scanEvent(row scanner) (model.LiveEvent, error) {
	var (
		ev               model.LiveEvent
		evType, status   string
		current, winner  sql.NullString
		voting           int64
		revealed         sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&ev.ID, &ev.SessionID, &evType, &status, &current, &voting,
		&winner, &revealed, &created, &updated); err != nil {
		return ev, err
	}
	ev.EventType = model.EventType(evType)
	ev.Status = model.EventStatus(status)
	ev.CurrentCandidateID = ptrStr(current)
	ev.IsVotingOpen = voting != 0
	ev.WinnerCandidateID = ptrStr(winner)
	ev.WinnerRevealedAt = ptrMs(revealed)
	ev.CreatedAt = fromMs(created)
	ev.UpdatedAt = fromMs(updated)
	return ev, nil
}

func (qs *queries) GetEvent(ctx context.Context, id string) (ev model.LiveEvent, err error) {
	defer observe("get_event", time.Now(), &err)
	ev, err = scanEvent(qs.queryRow(ctx, `SELECT `+eventCols+` FROM live_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ev, model.NewKind("store.get_event", model.ErrNotFound, "live event "+id)
	}
	return ev, classify("store.get_event", err)
}

func (qs *queries) ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (ev model.LiveEvent, err error) {
	defer observe("active_event", time.Now(), &err)
	ev, err = scanEvent(qs.queryRow(ctx, `SELECT `+eventCols+` FROM live_events
		WHERE session_id = ? AND event_type = ? AND status <> 'completed'`, sessionID, string(eventType)))
	if errors.Is(err, sql.ErrNoRows) {
		return ev, model.NewKind("store.active_event", model.ErrNotFound,
			"no active "+string(eventType)+" for session "+sessionID)
	}
	return ev, classify("store.active_event", err)
}

func (qs *queries) CountActiveEvents(ctx context.Context) (n int, err error) {
	defer observe("count_active_events", time.Now(), &err)
	err = qs.queryRow(ctx, `SELECT COUNT(*) FROM live_events WHERE status <> 'completed'`).Scan(&n)
	return n, classify("store.count_active_events", err)
}

const entryCols = `le.id, le.live_event_id, le.candidate_id, le.position, le.status,
	le.started_at, le.ended_at, le.vote_opened_at, le.vote_closed_at,
	c.id, c.session_id, c.stage_name, c.category, c.status, c.created_at`

func scanEntry(row scanner) (model.LineupEntry, error) {
	var (
		e                            model.LineupEntry
		c                            model.Candidate
		status, candStatus           string
		started, ended, opened, shut sql.NullInt64
		candCreated                  int64
	)
	if err := row.Scan(&e.ID, &e.LiveEventID, &e.CandidateID, &e.Position, &status,
		&started, &ended, &opened, &shut,
		&c.ID, &c.SessionID, &c.StageName, &c.Category, &candStatus, &candCreated); err != nil {
		return e, err
	}
	e.Status = model.EntryStatus(status)
	e.StartedAt = ptrMs(started)
	e.EndedAt = ptrMs(ended)
	e.VoteOpenedAt = ptrMs(opened)
	e.VoteClosedAt = ptrMs(shut)
	c.Status = model.CandidateStatus(candStatus)
	c.CreatedAt = fromMs(candCreated)
	e.Candidate = &c
	return e, nil
}

func (qs *queries) ListLineup(ctx context.Context, eventID string) (out []model.LineupEntry, err error) {
	defer observe("list_lineup", time.Now(), &err)
	rows, err := qs.query(ctx, `SELECT `+entryCols+` FROM lineup_entries le
		JOIN candidates c ON c.id = le.candidate_id
		WHERE le.live_event_id = ? ORDER BY le.position, le.id`, eventID)
	if err != nil {
		return nil, classify("store.list_lineup", err)
	}
	defer rows.Close()
	out = []model.LineupEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify("store.list_lineup", err)
		}
		out = append(out, e)
	}
	return out, classify("store.list_lineup", rows.Err())
}

func (qs *queries) GetLineupEntry(ctx context.Context, id string) (e model.LineupEntry, err error) {
	defer observe("get_lineup_entry", time.Now(), &err)
	e, err = scanEntry(qs.queryRow(ctx, `SELECT `+entryCols+` FROM lineup_entries le
		JOIN candidates c ON c.id = le.candidate_id WHERE le.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, model.NewKind("store.get_lineup_entry", model.ErrNotFound, "lineup entry "+id)
	}
	return e, classify("store.get_lineup_entry", err)
}

const candidateCols = `id, session_id, stage_name, category, status, created_at`

func scanCandidate(row scanner) (model.Candidate, error) {
	var (
		c       model.Candidate
		status  string
		created int64
	)
	if err := row.Scan(&c.ID, &c.SessionID, &c.StageName, &c.Category, &status, &created); err != nil {
		return c, err
	}
	c.Status = model.CandidateStatus(status)
	c.CreatedAt = fromMs(created)
	return c, nil
}

func (qs *queries) GetCandidate(ctx context.Context, id string) (c model.Candidate, err error) {
	defer observe("get_candidate", time.Now(), &err)
	c, err = scanCandidate(qs.queryRow(ctx, `SELECT `+candidateCols+` FROM candidates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, model.NewKind("store.get_candidate", model.ErrNotFound, "candidate "+id)
	}
	return c, classify("store.get_candidate", err)
}

func (qs *queries) ListCandidates(ctx context.Context, sessionID string) (out []model.Candidate, err error) {
	defer observe("list_candidates", time.Now(), &err)
	rows, err := qs.query(ctx, `SELECT `+candidateCols+` FROM candidates
		WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, classify("store.list_candidates", err)
	}
	defer rows.Close()
	out = []model.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, classify("store.list_candidates", err)
		}
		out = append(out, c)
	}
	return out, classify("store.list_candidates", rows.Err())
}

func (qs *queries) GetJuror(ctx context.Context, id string) (j model.Juror, err error) {
	defer observe("get_juror", time.Now(), &err)
	var active, created int64
	err = qs.queryRow(ctx, `SELECT id, session_id, name, active, created_at FROM jurors WHERE id = ?`, id).
		Scan(&j.ID, &j.SessionID, &j.Name, &active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return j, model.NewKind("store.get_juror", model.ErrNotFound, "juror "+id)
	}
	j.Active = active != 0
	j.CreatedAt = fromMs(created)
	return j, classify("store.get_juror", err)
}

func scoreWhere(f ScoreFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.SessionID != "" {
		clauses = append(clauses, "c.session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.JurorID != "" {
		clauses = append(clauses, "js.juror_id = ?")
		args = append(args, f.JurorID)
	}
	if f.CandidateID != "" {
		clauses = append(clauses, "js.candidate_id = ?")
		args = append(args, f.CandidateID)
	}
	if f.EventType != "" {
		clauses = append(clauses, "js.event_type = ?")
		args = append(args, string(f.EventType))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (qs *queries) ListJuryScores(ctx context.Context, f ScoreFilter) (out []model.JuryScore, err error) {
	defer observe("list_jury_scores", time.Now(), &err)
	where, args := scoreWhere(f)
	rows, err := qs.query(ctx, `SELECT js.id, c.session_id, js.juror_id, js.candidate_id, js.event_type, js.scores,
		js.total_score, js.comment, js.updated_at
		FROM jury_scores js JOIN candidates c ON c.id = js.candidate_id`+where+`
		ORDER BY js.updated_at, js.id`, args...)
	if err != nil {
		return nil, classify("store.list_jury_scores", err)
	}
	defer rows.Close()
	out = []model.JuryScore{}
	for rows.Next() {
		var (
			s       model.JuryScore
			evType  string
			raw     string
			updated int64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &s.JurorID, &s.CandidateID, &evType, &raw,
			&s.TotalScore, &s.Comment, &updated); err != nil {
			return nil, classify("store.list_jury_scores", err)
		}
		s.EventType = model.EventType(evType)
		s.UpdatedAt = fromMs(updated)
		if err := json.Unmarshal([]byte(raw), &s.Scores); err != nil {
			return nil, model.WrapKind("store.list_jury_scores", model.ErrUpstreamUnavailable, err)
		}
		out = append(out, s)
	}
	return out, classify("store.list_jury_scores", rows.Err())
}

func (qs *queries) countBy(ctx context.Context, op, table, sessionID string) (map[string]int, error) {
	rows, err := qs.query(ctx, `SELECT candidate_id, COUNT(*) FROM `+table+`
		WHERE session_id = ? GROUP BY candidate_id`, sessionID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, classify(op, err)
		}
		out[id] = n
	}
	return out, classify(op, rows.Err())
}

func (qs *queries) CountVotes(ctx context.Context, sessionID string) (out map[string]int, err error) {
	defer observe("count_votes", time.Now(), &err)
	return qs.countBy(ctx, "store.count_votes", "public_votes", sessionID)
}

func (qs *queries) CountShares(ctx context.Context, sessionID string) (out map[string]int, err error) {
	defer observe("count_shares", time.Now(), &err)
	return qs.countBy(ctx, "store.count_shares", "social_shares", sessionID)
}

func (qs *queries) GetWeights(ctx context.Context, sessionID string) (w model.Weights, ok bool, err error) {
	defer observe("get_weights", time.Now(), &err)
	err = qs.queryRow(ctx, `SELECT jury_weight, public_weight, social_weight
		FROM scoring_weights WHERE session_id = ?`, sessionID).Scan(&w.Jury, &w.Public, &w.Social)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Weights{}, false, nil
	}
	if err != nil {
		return w, false, classify("store.get_weights", err)
	}
	return w, true, nil
}

// txStore is the write side, bound to one sql.Tx.
type txStore struct {
	queries
	changes []model.Change
}

func (t *txStore) record(table string, op model.ChangeOp, id string, keys map[string]string, row any) {
	t.changes = append(t.changes, model.Change{Table: table, Op: op, ID: id, Keys: keys, Row: row})
}

func eventKeys(ev model.LiveEvent) map[string]string {
	return map[string]string{"session_id": ev.SessionID, "event_type": string(ev.EventType)}
}

func (t *txStore) LockEvent(ctx context.Context, id string) (model.LiveEvent, error) {
	query := `SELECT ` + eventCols + ` FROM live_events WHERE id = ?`
	if t.dialect == dialectPostgres {
		query += ` FOR UPDATE`
	}
	ev, err := scanEvent(t.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ev, model.NewKind("store.lock_event", model.ErrNotFound, "live event "+id)
	}
	return ev, classify("store.lock_event", err)
}

func (t *txStore) InsertEvent(ctx context.Context, ev model.LiveEvent) (err error) {
	defer observe("insert_event", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO live_events (`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, string(ev.EventType), string(ev.Status), nullStr(ev.CurrentCandidateID),
		boolInt(ev.IsVotingOpen), nullStr(ev.WinnerCandidateID), nullMs(ev.WinnerRevealedAt),
		toMs(ev.CreatedAt), toMs(ev.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewKind("store.insert_event", model.ErrDuplicateEntry,
				"session "+ev.SessionID+" already has an active "+string(ev.EventType))
		}
		return classify("store.insert_event", err)
	}
	t.record(model.TableLiveEvents, model.OpInsert, ev.ID, eventKeys(ev), ev)
	return nil
}

func (t *txStore) UpdateEvent(ctx context.Context, ev model.LiveEvent) (err error) {
	defer observe("update_event", time.Now(), &err)
	res, err := t.exec(ctx, `UPDATE live_events SET status = ?, current_candidate_id = ?, is_voting_open = ?,
		winner_candidate_id = ?, winner_revealed_at = ?, updated_at = ? WHERE id = ?`,
		string(ev.Status), nullStr(ev.CurrentCandidateID), boolInt(ev.IsVotingOpen),
		nullStr(ev.WinnerCandidateID), nullMs(ev.WinnerRevealedAt), toMs(ev.UpdatedAt), ev.ID)
	if err := mustAffect("store.update_event", "live event "+ev.ID, res, err); err != nil {
		return err
	}
	t.record(model.TableLiveEvents, model.OpUpdate, ev.ID, eventKeys(ev), ev)
	return nil
}

func entryKeys(e model.LineupEntry) map[string]string {
	return map[string]string{"live_event_id": e.LiveEventID, "candidate_id": e.CandidateID}
}

func (t *txStore) InsertLineupEntry(ctx context.Context, e model.LineupEntry) (err error) {
	defer observe("insert_lineup_entry", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO lineup_entries (id, live_event_id, candidate_id, position, status,
		started_at, ended_at, vote_opened_at, vote_closed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LiveEventID, e.CandidateID, e.Position, string(e.Status),
		nullMs(e.StartedAt), nullMs(e.EndedAt), nullMs(e.VoteOpenedAt), nullMs(e.VoteClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewKind("store.insert_lineup_entry", model.ErrDuplicateEntry,
				"candidate "+e.CandidateID+" is already in the lineup")
		}
		return classify("store.insert_lineup_entry", err)
	}
	e.Candidate = nil
	t.record(model.TableLineupEntries, model.OpInsert, e.ID, entryKeys(e), e)
	return nil
}

func (t *txStore) UpdateLineupEntry(ctx context.Context, e model.LineupEntry) (err error) {
	defer observe("update_lineup_entry", time.Now(), &err)
	res, err := t.exec(ctx, `UPDATE lineup_entries SET position = ?, status = ?, started_at = ?,
		ended_at = ?, vote_opened_at = ?, vote_closed_at = ? WHERE id = ?`,
		e.Position, string(e.Status), nullMs(e.StartedAt), nullMs(e.EndedAt),
		nullMs(e.VoteOpenedAt), nullMs(e.VoteClosedAt), e.ID)
	if err := mustAffect("store.update_lineup_entry", "lineup entry "+e.ID, res, err); err != nil {
		return err
	}
	e.Candidate = nil
	t.record(model.TableLineupEntries, model.OpUpdate, e.ID, entryKeys(e), e)
	return nil
}

func (t *txStore) InsertCandidate(ctx context.Context, c model.Candidate) (err error) {
	defer observe("insert_candidate", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO candidates (`+candidateCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.StageName, c.Category, string(c.Status), toMs(c.CreatedAt))
	if err != nil {
		return classify("store.insert_candidate", err)
	}
	t.record(model.TableCandidates, model.OpInsert, c.ID, map[string]string{"session_id": c.SessionID}, c)
	return nil
}

func (t *txStore) UpdateCandidateStatus(ctx context.Context, id string, status model.CandidateStatus) (err error) {
	defer observe("update_candidate_status", time.Now(), &err)
	res, err := t.exec(ctx, `UPDATE candidates SET status = ? WHERE id = ?`, string(status), id)
	if err := mustAffect("store.update_candidate_status", "candidate "+id, res, err); err != nil {
		return err
	}
	c, err := t.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	t.record(model.TableCandidates, model.OpUpdate, id, map[string]string{"session_id": c.SessionID}, c)
	return nil
}

func (t *txStore) InsertJuror(ctx context.Context, j model.Juror) (err error) {
	defer observe("insert_juror", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO jurors (id, session_id, name, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.SessionID, j.Name, boolInt(j.Active), toMs(j.CreatedAt))
	return classify("store.insert_juror", err)
}

func scoreKeys(s model.JuryScore) map[string]string {
	return map[string]string{
		"session_id":   s.SessionID,
		"juror_id":     s.JurorID,
		"candidate_id": s.CandidateID,
		"event_type":   string(s.EventType),
	}
}

func (t *txStore) UpsertJuryScore(ctx context.Context, s model.JuryScore) (id string, created bool, err error) {
	defer observe("upsert_jury_score", time.Now(), &err)
	raw, err := json.Marshal(s.Scores)
	if err != nil {
		return "", false, model.WrapKind("store.upsert_jury_score", model.ErrInvalidInput, err)
	}
	err = t.queryRow(ctx, `INSERT INTO jury_scores (id, juror_id, candidate_id, event_type, scores,
		total_score, comment, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (juror_id, candidate_id, event_type) DO UPDATE SET
			scores = excluded.scores,
			total_score = excluded.total_score,
			comment = excluded.comment,
			updated_at = excluded.updated_at
		RETURNING id`,
		s.ID, s.JurorID, s.CandidateID, string(s.EventType), string(raw),
		s.TotalScore, s.Comment, toMs(s.UpdatedAt)).Scan(&id)
	if err != nil {
		return "", false, classify("store.upsert_jury_score", err)
	}
	created = id == s.ID
	s.ID = id
	op := model.OpUpdate
	if created {
		op = model.OpInsert
	}
	t.record(model.TableJuryScores, op, id, scoreKeys(s), s)
	return id, created, nil
}

func (t *txStore) DeleteJuryScores(ctx context.Context, f ScoreFilter) (n int64, err error) {
	defer observe("delete_jury_scores", time.Now(), &err)
	scores, err := t.ListJuryScores(ctx, f)
	if err != nil {
		return 0, err
	}
	for _, s := range scores {
		if _, err := t.exec(ctx, `DELETE FROM jury_scores WHERE id = ?`, s.ID); err != nil {
			return n, classify("store.delete_jury_scores", err)
		}
		n++
		t.record(model.TableJuryScores, model.OpDelete, s.ID, scoreKeys(s), s)
	}
	return n, nil
}

func (t *txStore) InsertVote(ctx context.Context, v model.PublicVote) (duplicate bool, err error) {
	defer observe("insert_vote", time.Now(), &err)
	res, err := t.exec(ctx, `INSERT INTO public_votes (id, session_id, candidate_id, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (candidate_id, fingerprint) DO NOTHING`,
		v.ID, v.SessionID, v.CandidateID, v.Fingerprint, toMs(v.CreatedAt))
	if err != nil {
		return false, classify("store.insert_vote", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classify("store.insert_vote", err)
	}
	if affected == 0 {
		return true, nil
	}
	t.record(model.TablePublicVotes, model.OpInsert, v.ID,
		map[string]string{"session_id": v.SessionID, "candidate_id": v.CandidateID}, v)
	return false, nil
}

func (t *txStore) InsertShare(ctx context.Context, s model.SocialShare) (err error) {
	defer observe("insert_share", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO social_shares (id, session_id, candidate_id, platform, created_at)
		VALUES (?, ?, ?, ?, ?)`, s.ID, s.SessionID, s.CandidateID, s.Platform, toMs(s.CreatedAt))
	if err != nil {
		return classify("store.insert_share", err)
	}
	t.record(model.TableSocialShares, model.OpInsert, s.ID,
		map[string]string{"session_id": s.SessionID, "candidate_id": s.CandidateID}, s)
	return nil
}

func (t *txStore) PutWeights(ctx context.Context, sessionID string, w model.Weights) (err error) {
	defer observe("put_weights", time.Now(), &err)
	_, err = t.exec(ctx, `INSERT INTO scoring_weights (session_id, jury_weight, public_weight, social_weight)
		VALUES (?, ?, ?, ?) ON CONFLICT (session_id) DO UPDATE SET
			jury_weight = excluded.jury_weight,
			public_weight = excluded.public_weight,
			social_weight = excluded.social_weight`,
		sessionID, w.Jury, w.Public, w.Social)
	if err != nil {
		return classify("store.put_weights", err)
	}
	t.record(model.TableWeights, model.OpUpdate, sessionID, map[string]string{"session_id": sessionID}, w)
	return nil
}

func mustAffect(op, what string, res sql.Result, err error) error {
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return model.NewKind(op, model.ErrNotFound, what)
	}
	return nil
}

func toMs(t time.Time) int64 { return t.UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func ptrMs(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMs(n.Int64)
	return &t
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func ptrStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
