package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/http/api"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	service "github.com/13jisse-music/ChanteEnScene-sub003/internal/app"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/livesync"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const (
	session  = "s-2026"
	adminKey = "backstage-key"
)

type harness struct {
	srv    *httptest.Server
	issuer *auth.TokenIssuer
	admin  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	broker := feed.NewBroker()
	store, err := repository.Open(ctx, repository.DriverSQLite,
		"file:"+uuid.NewString()+"?mode=memory&cache=shared",
		repository.WithPublisher(broker))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := service.New(
		service.WithStore(store),
		service.WithFeed(broker),
		service.WithCriteria(map[string]float64{"voice": 50, "stage_presence": 50}),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	issuer := auth.NewTokenIssuer("test-secret", auth.WithAdminKey(adminKey))
	mux := http.NewServeMux()
	api.NewServer(svc, issuer, broker).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	admin, _, err := issuer.AdminToken(adminKey)
	if err != nil {
		t.Fatalf("admin token: %v", err)
	}
	return &harness{srv: srv, issuer: issuer, admin: admin}
}

// call sends body as JSON and decodes the response into out when given.
func (h *harness) call(method, path, token string, body, out any) int {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, h.srv.URL+path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (h *harness) candidate(name string) model.Candidate {
	var c model.Candidate
	h.call(http.MethodPost, "/sessions/"+session+"/candidates", h.admin,
		types.CandidateRequest{StageName: name, Category: "adult", Status: model.CandidateFinalist}, &c)
	return c
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		h := newHarness(t)

		Convey("When health is probed", func() {
			var body map[string]string
			code := h.call(http.MethodGet, "/healthz", "", nil, &body)

			Convey("Then it reports ok", func() {
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "ok")
			})
		})

		Convey("When metrics are scraped", func() {
			h.call(http.MethodGet, "/healthz", "", nil, nil)
			resp, err := http.Get(h.srv.URL + "/metrics")
			So(err, ShouldBeNil)
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			Convey("Then the custom registry is exposed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(string(b), ShouldContainSubstring, "http_requests_total")
			})
		})

		Convey("When stats are requested", func() {
			Convey("Then the public is refused", func() {
				So(h.call(http.MethodGet, "/stats", "", nil, nil), ShouldEqual, http.StatusUnauthorized)
			})

			Convey("Then the control room gets them", func() {
				var st types.Stats
				So(h.call(http.MethodGet, "/stats", h.admin, nil, &st), ShouldEqual, http.StatusOK)
				So(st.Uptime, ShouldNotBeEmpty)
			})
		})

		Convey("When the admin key is exchanged", func() {
			var bad types.ActionResult
			badCode := h.call(http.MethodPost, "/auth/admin", "", types.AdminAuthRequest{Key: "guess"}, &bad)
			var tok types.TokenResponse
			okCode := h.call(http.MethodPost, "/auth/admin", "", types.AdminAuthRequest{Key: adminKey}, &tok)

			Convey("Then only the right key yields an admin token", func() {
				So(badCode, ShouldEqual, http.StatusUnauthorized)
				So(bad.Error, ShouldEqual, "invalid admin key")
				So(okCode, ShouldEqual, http.StatusOK)
				id, err := h.issuer.Parse(tok.Token)
				So(err, ShouldBeNil)
				So(id.IsAdmin(), ShouldBeTrue)
			})
		})

		Convey("When a forged token is sent", func() {
			var res types.ActionResult
			code := h.call(http.MethodGet, "/events/x", "not-a-jwt", nil, &res)

			Convey("Then the request is refused before any handler", func() {
				So(code, ShouldEqual, http.StatusUnauthorized)
				So(res.Error, ShouldEqual, "invalid or expired token")
			})
		})
	})
}

func TestLiveFinalOverHTTP(t *testing.T) {
	Convey("Given a final run over the API", t, func() {
		h := newHarness(t)
		a, b := h.candidate("Alma"), h.candidate("Bruno")

		var ev model.LiveEvent
		So(h.call(http.MethodPost, "/sessions/"+session+"/events", "",
			types.CreateEventRequest{EventType: model.EventFinal}, nil), ShouldEqual, http.StatusUnauthorized)
		So(h.call(http.MethodPost, "/sessions/"+session+"/events", h.admin,
			types.CreateEventRequest{EventType: model.EventFinal}, &ev), ShouldEqual, http.StatusCreated)

		for _, c := range []model.Candidate{a, b} {
			So(h.call(http.MethodPost, "/events/"+ev.ID+"/checkin", "",
				types.CheckinRequest{CandidateID: c.ID}, nil), ShouldEqual, http.StatusCreated)
		}
		base := "/events/" + ev.ID

		Convey("When the active final is looked up", func() {
			var active model.LiveEvent
			code := h.call(http.MethodGet, "/sessions/"+session+"/events/active?type=final", "", nil, &active)

			Convey("Then it is the created one", func() {
				So(code, ShouldEqual, http.StatusOK)
				So(active.ID, ShouldEqual, ev.ID)
			})
		})

		Convey("When the first performer is on stage with voting open", func() {
			var res types.ActionResult
			So(h.call(http.MethodPost, base+"/advance", h.admin, nil, &res), ShouldEqual, http.StatusOK)
			So(res.Success, ShouldBeTrue)
			So(h.call(http.MethodPost, base+"/voting/open", h.admin, nil, nil), ShouldEqual, http.StatusOK)

			vote := types.VoteRequest{CandidateID: a.ID, Fingerprint: "device-1", LiveEventID: ev.ID}
			var first, again types.VoteReceipt
			So(h.call(http.MethodPost, "/sessions/"+session+"/votes", "", vote, &first), ShouldEqual, http.StatusOK)
			So(h.call(http.MethodPost, "/sessions/"+session+"/votes", "", vote, &again), ShouldEqual, http.StatusOK)

			Convey("Then a retried vote is acknowledged but counted once", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(again.Duplicate, ShouldBeTrue)
				var tally types.TallyResponse
				So(h.call(http.MethodGet, base+"/tally", "", nil, &tally), ShouldEqual, http.StatusOK)
				So(tally.Counts[a.ID], ShouldEqual, 1)
			})

			Convey("Then a vote for the off-stage performer conflicts", func() {
				var res types.ActionResult
				off := types.VoteRequest{CandidateID: b.ID, Fingerprint: "device-1", LiveEventID: ev.ID}
				So(h.call(http.MethodPost, "/sessions/"+session+"/votes", "", off, &res), ShouldEqual, http.StatusConflict)
				So(res.Error, ShouldEqual, "candidate is not on stage")
			})

			Convey("Then advancing past the end reports the exhausted lineup", func() {
				So(h.call(http.MethodPost, base+"/advance", h.admin, nil, nil), ShouldEqual, http.StatusOK)
				So(h.call(http.MethodPost, base+"/advance", h.admin, nil, nil), ShouldEqual, http.StatusOK)
				var res types.ActionResult
				So(h.call(http.MethodPost, base+"/advance", h.admin, nil, &res), ShouldEqual, http.StatusConflict)
				So(res, ShouldResemble, types.Failed("lineup exhausted"))
			})
		})

		Convey("When a juror is registered and scores", func() {
			var reg types.JurorRegistration
			So(h.call(http.MethodPost, "/sessions/"+session+"/jurors", h.admin,
				types.JurorRequest{Name: "Nina"}, &reg), ShouldEqual, http.StatusCreated)
			So(reg.Token, ShouldNotBeEmpty)

			score := types.JuryScoreRequest{
				JurorID: reg.Juror.ID, CandidateID: b.ID, EventType: model.EventFinal,
				Scores: map[string]float64{"voice": 40, "stage_presence": 45},
			}
			var saved model.JuryScore
			So(h.call(http.MethodPost, "/jury/scores", reg.Token, score, &saved), ShouldEqual, http.StatusOK)

			Convey("Then the score is private to the jury and the control room", func() {
				So(saved.TotalScore, ShouldEqual, 85)
				So(h.call(http.MethodGet, "/jury/scores?type=final", "", nil, nil), ShouldEqual, http.StatusUnauthorized)

				var mine []model.JuryScore
				So(h.call(http.MethodGet, "/jury/scores?type=final", reg.Token, nil, &mine), ShouldEqual, http.StatusOK)
				So(mine, ShouldHaveLength, 1)
			})

			Convey("Then the ranking puts the scored candidate first", func() {
				var rk types.RankingResponse
				So(h.call(http.MethodGet, "/sessions/"+session+"/ranking?type=final", "", nil, &rk), ShouldEqual, http.StatusOK)
				So(rk.Rankings, ShouldHaveLength, 2)
				So(rk.Rankings[0].CandidateID, ShouldEqual, b.ID)
			})

			Convey("Then the control room can reset it", func() {
				var res struct {
					Success bool  `json:"success"`
					Deleted int64 `json:"deleted"`
				}
				So(h.call(http.MethodDelete, "/jury/scores?session="+session+"&type=final", h.admin, nil, &res),
					ShouldEqual, http.StatusOK)
				So(res.Deleted, ShouldEqual, 1)
			})
		})

		Convey("When the winner is revealed twice", func() {
			reveal := types.RevealRequest{CandidateID: b.ID}
			So(h.call(http.MethodPost, base+"/reveal", h.admin, reveal, nil), ShouldEqual, http.StatusOK)
			So(h.call(http.MethodPost, base+"/reveal", h.admin, reveal, nil), ShouldEqual, http.StatusOK)
			var other types.ActionResult
			code := h.call(http.MethodPost, base+"/reveal", h.admin, types.RevealRequest{CandidateID: a.ID}, &other)

			Convey("Then the repeat is harmless and another name conflicts", func() {
				So(code, ShouldEqual, http.StatusConflict)
				var got model.LiveEvent
				h.call(http.MethodGet, base, "", nil, &got)
				So(*got.WinnerCandidateID, ShouldEqual, b.ID)
			})

			Convey("Then deleting the reveal clears it", func() {
				So(h.call(http.MethodDelete, base+"/reveal", h.admin, nil, nil), ShouldEqual, http.StatusOK)
				var got model.LiveEvent
				h.call(http.MethodGet, base, "", nil, &got)
				So(got.WinnerCandidateID, ShouldBeNil)
			})
		})

		Convey("When the body is not JSON", func() {
			req, _ := http.NewRequest(http.MethodPost, h.srv.URL+base+"/checkin", bytes.NewBufferString("{"))
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			resp.Body.Close()

			Convey("Then it is a bad request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown event is read", func() {
			Convey("Then it is not found", func() {
				So(h.call(http.MethodGet, "/events/missing", "", nil, nil), ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestChangeStreams(t *testing.T) {
	Convey("Given a remote client following a final", t, func() {
		h := newHarness(t)
		var ev model.LiveEvent
		h.call(http.MethodPost, "/sessions/"+session+"/events", h.admin,
			types.CreateEventRequest{EventType: model.EventFinal}, &ev)
		client, err := livesync.NewClient(h.srv.URL)
		So(err, ShouldBeNil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		Reset(cancel)

		Convey("When a performer checks in while the lineup stream is open", func() {
			sub, err := client.Subscribe(ctx, model.ChangeFilter{
				Table: model.TableLineupEntries, Key: "live_event_id", Value: ev.ID,
			})
			So(err, ShouldBeNil)
			defer sub.Close()
			c := h.candidate("Alma")
			// The server subscribes before completing the handshake.
			h.call(http.MethodPost, "/events/"+ev.ID+"/checkin", "", types.CheckinRequest{CandidateID: c.ID}, nil)

			Convey("Then the insert is pushed", func() {
				select {
				case ch := <-sub.C():
					So(ch.Op, ShouldEqual, model.OpInsert)
					So(ch.Keys["candidate_id"], ShouldEqual, c.ID)
				case <-ctx.Done():
					So("no change pushed", ShouldBeEmpty)
				}
			})
		})

		Convey("When the public asks for the jury stream", func() {
			_, err := client.Subscribe(ctx, model.ChangeFilter{Table: model.TableJuryScores})

			Convey("Then the upgrade is refused", func() {
				So(errors.Is(err, model.ErrUpstreamUnavailable), ShouldBeTrue)
			})
		})

		Convey("When the public follows votes", func() {
			sub, err := client.Subscribe(ctx, model.ChangeFilter{
				Table: model.TablePublicVotes, Key: "session_id", Value: session,
			})
			So(err, ShouldBeNil)
			defer sub.Close()
			c := h.candidate("Bruno")
			h.call(http.MethodPost, "/sessions/"+session+"/votes", "",
				types.VoteRequest{CandidateID: c.ID, Fingerprint: "device-9"}, nil)

			Convey("Then device fingerprints never leave the server", func() {
				select {
				case ch := <-sub.C():
					So(ch.Row, ShouldBeNil)
					So(ch.Keys["candidate_id"], ShouldEqual, c.ID)
				case <-ctx.Done():
					So("no change pushed", ShouldBeEmpty)
				}
			})
		})

		Convey("When a lineup read model runs over the wire", func() {
			lu := livesync.NewLineupSync(client, ev.ID, livesync.WithFeed(client), livesync.WithPollInterval(time.Hour))
			go lu.Run(ctx)
			deadline := time.Now().Add(3 * time.Second)
			for !lu.Loaded() && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			c := h.candidate("Chloe")
			h.call(http.MethodPost, "/events/"+ev.ID+"/checkin", "", types.CheckinRequest{CandidateID: c.ID}, nil)

			Convey("Then the pushed entry is completed with its candidate", func() {
				var got []model.LineupEntry
				for time.Now().Before(deadline.Add(2 * time.Second)) {
					got, _ = lu.Value()
					if len(got) == 1 {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got, ShouldHaveLength, 1)
				So(got[0].Candidate, ShouldNotBeNil)
				So(got[0].Candidate.StageName, ShouldEqual, "Chloe")
			})
		})
	})
}
