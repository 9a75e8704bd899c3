package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

type recorder struct {
	mu      sync.Mutex
	changes []model.Change
}

func (r *recorder) Publish(_ context.Context, changes ...model.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
}

func (r *recorder) all() []model.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Change(nil), r.changes...)
}

func openStore(t *testing.T, pub repository.ChangePublisher) *repository.SQLStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	s, err := repository.Open(context.Background(), repository.DriverSQLite, dsn, repository.WithPublisher(pub))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var now = time.Date(2026, 6, 21, 20, 0, 0, 0, time.UTC)

func seed(ctx context.Context, s repository.Store) (model.LiveEvent, []model.Candidate) {
	ev := model.LiveEvent{
		ID: "ev-1", SessionID: "s-1", EventType: model.EventFinal, Status: model.EventPending,
		CreatedAt: now, UpdatedAt: now,
	}
	cands := []model.Candidate{
		{ID: "c-a", SessionID: "s-1", StageName: "Alma", Category: "adult", Status: model.CandidateFinalist, CreatedAt: now},
		{ID: "c-b", SessionID: "s-1", StageName: "Bo", Category: "adult", Status: model.CandidateFinalist, CreatedAt: now.Add(time.Second)},
	}
	err := s.Tx(ctx, func(tx repository.Tx) error {
		for _, c := range cands {
			if err := tx.InsertCandidate(ctx, c); err != nil {
				return err
			}
		}
		if err := tx.InsertJuror(ctx, model.Juror{ID: "j-1", SessionID: "s-1", Name: "Jo", Active: true, CreatedAt: now}); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, ev)
	})
	So(err, ShouldBeNil)
	return ev, cands
}

func TestOpen(t *testing.T) {
	Convey("Given an unsupported driver", t, func() {
		_, err := repository.Open(context.Background(), "mysql", "x")

		Convey("Then Open refuses it", func() {
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestEvents(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		pub := &recorder{}
		s := openStore(t, pub)
		ev, _ := seed(ctx, s)

		Convey("When the event is read back", func() {
			got, err := s.GetEvent(ctx, ev.ID)

			Convey("Then every field round-trips", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, ev)
				active, err := s.ActiveEvent(ctx, "s-1", model.EventFinal)
				So(err, ShouldBeNil)
				So(active.ID, ShouldEqual, ev.ID)
				n, err := s.CountActiveEvents(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the event is updated with pointers set", func() {
			cur := "c-a"
			revealed := now.Add(time.Hour)
			ev.Status = model.EventLive
			ev.CurrentCandidateID = &cur
			ev.IsVotingOpen = true
			ev.WinnerCandidateID = &cur
			ev.WinnerRevealedAt = &revealed
			ev.UpdatedAt = revealed
			err := s.Tx(ctx, func(tx repository.Tx) error {
				locked, err := tx.LockEvent(ctx, ev.ID)
				So(locked.Status, ShouldEqual, model.EventPending)
				if err != nil {
					return err
				}
				return tx.UpdateEvent(ctx, ev)
			})

			Convey("Then the row is updated and announced after commit", func() {
				So(err, ShouldBeNil)
				got, _ := s.GetEvent(ctx, ev.ID)
				So(got, ShouldResemble, ev)
				changes := pub.all()
				last := changes[len(changes)-1]
				So(last.Table, ShouldEqual, model.TableLiveEvents)
				So(last.Op, ShouldEqual, model.OpUpdate)
				So(last.Keys["session_id"], ShouldEqual, "s-1")
			})
		})

		Convey("When a second active final is opened for the session", func() {
			dup := ev
			dup.ID = "ev-2"
			before := len(pub.all())
			err := s.Tx(ctx, func(tx repository.Tx) error { return tx.InsertEvent(ctx, dup) })

			Convey("Then it is a duplicate and nothing is announced", func() {
				So(errors.Is(err, model.ErrDuplicateEntry), ShouldBeTrue)
				So(len(pub.all()), ShouldEqual, before)
			})
		})

		Convey("When the first event is completed", func() {
			ev.Status = model.EventCompleted
			So(s.Tx(ctx, func(tx repository.Tx) error { return tx.UpdateEvent(ctx, ev) }), ShouldBeNil)
			next := ev
			next.ID = "ev-2"
			next.Status = model.EventPending
			err := s.Tx(ctx, func(tx repository.Tx) error { return tx.InsertEvent(ctx, next) })

			Convey("Then a new event of the same type may start", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When an unknown event is read", func() {
			_, err := s.GetEvent(ctx, "nope")
			_, errActive := s.ActiveEvent(ctx, "s-9", model.EventSemifinal)
			errUpdate := s.Tx(ctx, func(tx repository.Tx) error {
				return tx.UpdateEvent(ctx, model.LiveEvent{ID: "nope", Status: model.EventLive})
			})

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errActive, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errUpdate, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestLineup(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		pub := &recorder{}
		s := openStore(t, pub)
		ev, cands := seed(ctx, s)

		err := s.Tx(ctx, func(tx repository.Tx) error {
			for i, c := range cands {
				e := model.LineupEntry{ID: "le-" + c.ID, LiveEventID: ev.ID, CandidateID: c.ID, Position: 2 - i, Status: model.EntryPending}
				if err := tx.InsertLineupEntry(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
		So(err, ShouldBeNil)

		Convey("When the lineup is listed", func() {
			entries, err := s.ListLineup(ctx, ev.ID)

			Convey("Then it is ordered by position and joined with candidates", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].CandidateID, ShouldEqual, "c-b")
				So(entries[0].Candidate.StageName, ShouldEqual, "Bo")
				So(entries[1].Position, ShouldEqual, 2)
			})
		})

		Convey("When the same candidate is added twice", func() {
			err := s.Tx(ctx, func(tx repository.Tx) error {
				return tx.InsertLineupEntry(ctx, model.LineupEntry{ID: "le-x", LiveEventID: ev.ID, CandidateID: "c-a", Position: 3, Status: model.EntryPending})
			})

			Convey("Then it is a duplicate", func() {
				So(errors.Is(err, model.ErrDuplicateEntry), ShouldBeTrue)
			})
		})

		Convey("When two entries are set performing", func() {
			started := now
			err := s.Tx(ctx, func(tx repository.Tx) error {
				for _, id := range []string{"le-c-a", "le-c-b"} {
					e, err := tx.GetLineupEntry(ctx, id)
					if err != nil {
						return err
					}
					e.Status = model.EntryPerforming
					e.StartedAt = &started
					if err := tx.UpdateLineupEntry(ctx, e); err != nil {
						return err
					}
				}
				return nil
			})

			Convey("Then the store refuses a second performer and rolls back", func() {
				So(err, ShouldNotBeNil)
				entries, _ := s.ListLineup(ctx, ev.ID)
				for _, e := range entries {
					So(e.Status, ShouldEqual, model.EntryPending)
				}
			})
		})

		Convey("When an entry is updated", func() {
			started := now.Add(time.Minute)
			err := s.Tx(ctx, func(tx repository.Tx) error {
				e, err := tx.GetLineupEntry(ctx, "le-c-a")
				if err != nil {
					return err
				}
				e.Status = model.EntryPerforming
				e.StartedAt = &started
				return tx.UpdateLineupEntry(ctx, e)
			})

			Convey("Then timestamps round-trip and the change carries the event id", func() {
				So(err, ShouldBeNil)
				e, _ := s.GetLineupEntry(ctx, "le-c-a")
				So(e.Status, ShouldEqual, model.EntryPerforming)
				So(e.StartedAt.Equal(started), ShouldBeTrue)
				So(e.EndedAt, ShouldBeNil)
				changes := pub.all()
				So(changes[len(changes)-1].Keys["live_event_id"], ShouldEqual, ev.ID)
			})
		})
	})
}

func TestVotesAndScores(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		pub := &recorder{}
		s := openStore(t, pub)
		seed(ctx, s)

		vote := func(id, cand, fp string) (bool, error) {
			var dup bool
			err := s.Tx(ctx, func(tx repository.Tx) error {
				var err error
				dup, err = tx.InsertVote(ctx, model.PublicVote{ID: id, SessionID: "s-1", CandidateID: cand, Fingerprint: fp, CreatedAt: now})
				return err
			})
			return dup, err
		}

		Convey("When one device votes twice for the same candidate", func() {
			first, err1 := vote("v-1", "c-a", "device-1")
			second, err2 := vote("v-2", "c-a", "device-1")
			other, err3 := vote("v-3", "c-b", "device-1")

			Convey("Then only the first vote counts", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(other, ShouldBeFalse)
				counts, err := s.CountVotes(ctx, "s-1")
				So(err, ShouldBeNil)
				So(counts, ShouldResemble, map[string]int{"c-a": 1, "c-b": 1})
			})
		})

		Convey("When many devices vote concurrently with retries", func() {
			var wg sync.WaitGroup
			for d := 0; d < 10; d++ {
				for r := 0; r < 3; r++ {
					wg.Add(1)
					go func(d int) {
						defer wg.Done()
						_, _ = vote(uuid.NewString(), "c-a", "device-"+string(rune('a'+d)))
					}(d)
				}
			}
			wg.Wait()

			Convey("Then each device is counted once", func() {
				counts, err := s.CountVotes(ctx, "s-1")
				So(err, ShouldBeNil)
				So(counts["c-a"], ShouldEqual, 10)
			})
		})

		Convey("When a juror scores the same candidate twice", func() {
			upsert := func(id string, total float64, at time.Time) (string, bool) {
				var (
					got     string
					created bool
				)
				So(s.Tx(ctx, func(tx repository.Tx) error {
					var err error
					got, created, err = tx.UpsertJuryScore(ctx, model.JuryScore{
						ID: id, SessionID: "s-1", JurorID: "j-1", CandidateID: "c-a", EventType: model.EventFinal,
						Scores: map[string]float64{"voice": total}, TotalScore: total, UpdatedAt: at,
					})
					return err
				}), ShouldBeNil)
				return got, created
			}
			id1, created1 := upsert("js-1", 7, now)
			id2, created2 := upsert("js-2", 9, now.Add(time.Minute))

			Convey("Then the second submission overwrites the first", func() {
				So(created1, ShouldBeTrue)
				So(created2, ShouldBeFalse)
				So(id2, ShouldEqual, id1)
				scores, err := s.ListJuryScores(ctx, repository.ScoreFilter{SessionID: "s-1", EventType: model.EventFinal})
				So(err, ShouldBeNil)
				So(len(scores), ShouldEqual, 1)
				So(scores[0].TotalScore, ShouldEqual, 9)
				So(scores[0].Scores, ShouldResemble, map[string]float64{"voice": 9})
				So(scores[0].SessionID, ShouldEqual, "s-1")
			})

			Convey("Then the changes carry the session and event type", func() {
				changes := pub.all()
				last := changes[len(changes)-1]
				So(last.Table, ShouldEqual, model.TableJuryScores)
				So(last.Keys["session_id"], ShouldEqual, "s-1")
				So(last.Keys["event_type"], ShouldEqual, string(model.EventFinal))
			})

			Convey("Then scores can be reset", func() {
				var n int64
				So(s.Tx(ctx, func(tx repository.Tx) error {
					var err error
					n, err = tx.DeleteJuryScores(ctx, repository.ScoreFilter{CandidateID: "c-a"})
					return err
				}), ShouldBeNil)
				So(n, ShouldEqual, 1)
				scores, _ := s.ListJuryScores(ctx, repository.ScoreFilter{})
				So(scores, ShouldBeEmpty)
				changes := pub.all()
				So(changes[len(changes)-1].Op, ShouldEqual, model.OpDelete)
				So(changes[len(changes)-1].Keys["session_id"], ShouldEqual, "s-1")
			})
		})

		Convey("When shares and weights are written", func() {
			So(s.Tx(ctx, func(tx repository.Tx) error {
				if err := tx.InsertShare(ctx, model.SocialShare{ID: "sh-1", SessionID: "s-1", CandidateID: "c-b", Platform: "instagram", CreatedAt: now}); err != nil {
					return err
				}
				if err := tx.PutWeights(ctx, "s-1", model.Weights{Jury: 50, Public: 50}); err != nil {
					return err
				}
				return tx.PutWeights(ctx, "s-1", model.Weights{Jury: 60, Public: 30, Social: 10})
			}), ShouldBeNil)

			Convey("Then they are readable", func() {
				shares, err := s.CountShares(ctx, "s-1")
				So(err, ShouldBeNil)
				So(shares["c-b"], ShouldEqual, 1)
				w, ok, err := s.GetWeights(ctx, "s-1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(w, ShouldResemble, model.Weights{Jury: 60, Public: 30, Social: 10})
				_, ok, err = s.GetWeights(ctx, "s-2")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a candidate status changes", func() {
			So(s.Tx(ctx, func(tx repository.Tx) error {
				return tx.UpdateCandidateStatus(ctx, "c-a", model.CandidateWinner)
			}), ShouldBeNil)

			Convey("Then it is stored", func() {
				c, err := s.GetCandidate(ctx, "c-a")
				So(err, ShouldBeNil)
				So(c.Status, ShouldEqual, model.CandidateWinner)
				list, _ := s.ListCandidates(ctx, "s-1")
				So(list[0].ID, ShouldEqual, "c-a")
				j, err := s.GetJuror(ctx, "j-1")
				So(err, ShouldBeNil)
				So(j.Active, ShouldBeTrue)
			})
		})
	})
}
