package venuesim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/http/api"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	service "github.com/13jisse-music/ChanteEnScene-sub003/internal/app"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var criteria = map[string]float64{"voice": 10, "interpretation": 10, "stage_presence": 10} //nolint:gochecknoglobals // test fixture

func startService(t *testing.T) string {
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
		service.WithCriteria(criteria),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, auth.NewTokenIssuer("sim-secret", auth.WithAdminKey("sim-key")), broker).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		out := filepath.Join(t.TempDir(), "report.json")
		config := &Config{
			BaseURL:         startService(t),
			AdminKey:        "sim-key",
			SessionID:       "sim-session",
			EventType:       model.EventFinal,
			Category:        "adult",
			Candidates:      3,
			Jurors:          2,
			Voters:          30,
			DuplicateRate:   0.5,
			ShareRate:       0.3,
			Weights:         model.Weights{Jury: 50, Public: 40, Social: 10},
			Criteria:        criteria,
			Workers:         4,
			Timeout:         5 * time.Second,
			PollInterval:    200 * time.Millisecond,
			CelebrationWait: 5 * time.Second,
			OutputFile:      out,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		Reset(cancel)

		Convey("When a full show is simulated", func() {
			err := Run(ctx, config)

			Convey("Then it completes and reports the winner", func() {
				So(err, ShouldBeNil)
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var report Report
				So(json.Unmarshal(data, &report), ShouldBeNil)
				So(report.Acts, ShouldHaveLength, 3)
				So(report.Ranking.Rankings, ShouldHaveLength, 3)
				So(report.Winner, ShouldEqual, report.Ranking.Rankings[0].StageName)
				So(report.Ranking.Weights, ShouldResemble, config.Weights)
				for _, a := range report.Acts {
					So(report.Tally.Counts[a.CandidateID], ShouldEqual, a.Votes)
				}
			})
		})

		Convey("When the weights do not add up", func() {
			config.Weights = model.Weights{Jury: 50, Public: 50, Social: 50}
			err := Run(ctx, config)

			Convey("Then registration is refused", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "weights")
			})
		})

		Convey("When the admin key is wrong", func() {
			config.AdminKey = "guess"
			err := Run(ctx, config)

			Convey("Then the show never starts", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "admin login failed")
			})
		})
	})
}

func TestVerification(t *testing.T) {
	Convey("Given the ballots counted during a show", t, func() {
		acts := []Act{{CandidateID: "a", StageName: "Lou 1", Votes: 4}, {CandidateID: "b", StageName: "Mika 2", Votes: 0}}

		Convey("Then a matching tally passes", func() {
			So(verifyTally(acts, types.TallyResponse{Counts: map[string]int{"a": 4}}), ShouldBeNil)
		})

		Convey("Then a tally counting a retry twice fails", func() {
			err := verifyTally(acts, types.TallyResponse{Counts: map[string]int{"a": 5}})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "Lou 1")
		})
	})

	Convey("Given the raw material of a show", t, func() {
		acts := []Act{
			{CandidateID: "a", StageName: "Lou 1", Shares: 2},
			{CandidateID: "b", StageName: "Mika 2"},
		}
		scores := []model.JuryScore{{CandidateID: "a", TotalScore: 20}, {CandidateID: "b", TotalScore: 10}}
		tally := types.TallyResponse{Counts: map[string]int{"a": 3, "b": 6}}
		w := model.Weights{Jury: 50, Public: 40, Social: 10}
		local := ranking.New().Compute([]ranking.Input{
			{CandidateID: "a", StageName: "Lou 1", JuryScores: []float64{20}, PublicVotes: 3, SocialVotes: 2},
			{CandidateID: "b", StageName: "Mika 2", JuryScores: []float64{10}, PublicVotes: 6},
		}, w)

		Convey("Then the service's own totals pass", func() {
			got := types.RankingResponse{Weights: w, Rankings: local}
			So(verifyLocalRanking(acts, scores, tally, got, ranking.JurySum), ShouldBeNil)
		})

		Convey("Then a drifted total fails", func() {
			drifted := append([]model.Ranking(nil), local...)
			drifted[0].Total += 1
			err := verifyLocalRanking(acts, scores, tally, types.RankingResponse{Weights: w, Rankings: drifted}, ranking.JurySum)
			So(err, ShouldNotBeNil)
		})

		Convey("Then a candidate that never performed fails", func() {
			extra := append(append([]model.Ranking(nil), local...), model.Ranking{CandidateID: "z"})
			err := verifyLocalRanking(acts, scores, tally, types.RankingResponse{Weights: w, Rankings: extra}, ranking.JurySum)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given rankings", t, func() {
		Convey("Then dense ranks with falling totals pass", func() {
			So(verifyRanking(types.RankingResponse{Rankings: []model.Ranking{
				{Rank: 1, Total: 80}, {Rank: 2, Total: 80}, {Rank: 3, Total: 12},
			}}), ShouldBeNil)
		})

		Convey("Then a rising total fails", func() {
			So(verifyRanking(types.RankingResponse{Rankings: []model.Ranking{
				{Rank: 1, Total: 10}, {Rank: 2, Total: 20},
			}}), ShouldNotBeNil)
		})

		Convey("Then an empty ranking fails", func() {
			So(verifyRanking(types.RankingResponse{}), ShouldNotBeNil)
		})
	})
}

func TestGenerators(t *testing.T) {
	Convey("Given generated performers and scores", t, func() {
		cast := generatePerformers(14)
		names := map[string]bool{}
		for _, p := range cast {
			names[p.StageName] = true
		}

		Convey("Then stage names are distinct and appeal is a share", func() {
			So(names, ShouldHaveLength, 14)
			for _, p := range cast {
				So(p.Appeal, ShouldBeBetween, 0, 1)
			}
		})

		Convey("Then scores stay within each criterion", func() {
			for range 50 {
				sc := generateScores(criteria, 1)
				So(sc, ShouldHaveLength, 3)
				for name, v := range sc {
					So(v, ShouldBeBetweenOrEqual, 0, criteria[name])
				}
			}
		})

		Convey("Then criteria parse from flags", func() {
			c, err := ParseCriteria("voice=10, stage_presence=5")
			So(err, ShouldBeNil)
			So(c, ShouldResemble, map[string]float64{"voice": 10, "stage_presence": 5})
			_, err = ParseCriteria("voice")
			So(err, ShouldNotBeNil)
			_, err = ParseCriteria("")
			So(err, ShouldNotBeNil)
		})

		Convey("Then weights parse from flags", func() {
			w, err := ParseWeights("50, 40, 10")
			So(err, ShouldBeNil)
			So(w, ShouldResemble, model.Weights{Jury: 50, Public: 40, Social: 10})
			w, err = ParseWeights("")
			So(err, ShouldBeNil)
			So(w, ShouldResemble, model.Weights{})
			_, err = ParseWeights("50,50")
			So(err, ShouldNotBeNil)
			_, err = ParseWeights("50,-1,51")
			So(err, ShouldNotBeNil)
		})
	})
}
