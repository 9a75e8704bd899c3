package scoring_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScorecard_Score(t *testing.T) {
	Convey("Given a scorecard with three criteria", t, func() {
		card := scoring.NewScorecard(scoring.WithCriteria(map[string]float64{
			"voice":          10,
			"interpretation": 10,
			"stage_presence": 5,
		}))

		Convey("When a complete sheet is scored", func() {
			res, err := card.Score("test", map[string]float64{"voice": 8, "interpretation": 7.5, "stage_presence": 5})

			Convey("Then the total and percentage are computed", func() {
				So(err, ShouldBeNil)
				So(res.Total, ShouldEqual, 20.5)
				So(res.Max, ShouldEqual, 25)
				So(res.Percent, ShouldAlmostEqual, 82, 1e-9)
			})
		})

		Convey("When a sheet leaves a criterion out", func() {
			res, err := card.Score("test", map[string]float64{"voice": 9})

			Convey("Then it is accepted by default", func() {
				So(err, ShouldBeNil)
				So(res.Total, ShouldEqual, 9)
			})
		})

		Convey("When a score exceeds its criterion", func() {
			_, err := card.Score("test", map[string]float64{"stage_presence": 6})

			Convey("Then it is invalid input naming the bound", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
				So(model.Message(err), ShouldEqual, "stage_presence must be between 0 and 5")
			})
		})

		Convey("Then negative, NaN, unknown and empty sheets are refused", func() {
			for _, sheet := range []map[string]float64{
				{"voice": -1},
				{"voice": math.NaN()},
				{"dance": 3},
				{},
			} {
				_, err := card.Score("test", sheet)
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			}
		})

		Convey("Then the criteria are reported sorted", func() {
			So(card.Names(), ShouldResemble, []string{"interpretation", "stage_presence", "voice"})
			So(card.Max(), ShouldEqual, 25)
		})

		Convey("Then callers cannot change the criteria", func() {
			c := card.Criteria()
			c["voice"] = 100
			_, err := card.Score("test", map[string]float64{"voice": 50})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a scorecard requiring complete sheets", t, func() {
		card := scoring.NewScorecard(
			scoring.WithCriteria(map[string]float64{"voice": 10, "interpretation": 10}),
			scoring.WithCompleteSheets(),
		)

		Convey("Then a partial sheet is refused", func() {
			_, err := card.Score("test", map[string]float64{"voice": 4})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			So(model.Message(err), ShouldEqual, "sheet scores 1 of 2 criteria")
		})

		Convey("Then a complete sheet passes", func() {
			res, err := card.Score("test", map[string]float64{"voice": 4, "interpretation": 6})
			So(err, ShouldBeNil)
			So(res.Percent, ShouldEqual, 50)
		})
	})

	Convey("Given criteria without a usable maximum", t, func() {
		card := scoring.NewScorecard(scoring.WithCriteria(map[string]float64{"voice": 0, "style": -2}))

		Convey("Then the defaults stay in place", func() {
			So(card.Criteria(), ShouldResemble, scoring.DefaultCriteria())
		})
	})
}

func TestScorecard_Concurrency(t *testing.T) {
	Convey("Given a scorecard shared by many jurors", t, func() {
		card := scoring.NewScorecard()
		var wg sync.WaitGroup
		var mu sync.Mutex
		var failures int

		Convey("When they score at the same time", func() {
			for i := range 50 {
				wg.Add(1)
				go func(v float64) {
					defer wg.Done()
					if _, err := card.Score("test", map[string]float64{"voice": v}); err != nil {
						mu.Lock()
						failures++
						mu.Unlock()
					}
				}(float64(i % 11))
			}
			wg.Wait()

			Convey("Then every sheet is checked", func() {
				So(failures, ShouldEqual, 0)
			})
		})
	})
}
