package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorMapping(t *testing.T) {
	Convey("Given errors of every kind", t, func() {
		cases := map[error]int{
			model.NewKind("op", model.ErrPreconditionFailed, "lineup exhausted"): http.StatusConflict,
			model.NewKind("op", model.ErrDuplicateEntry, "twice"):                http.StatusConflict,
			model.NewKind("op", model.ErrNotFound, "gone"):                       http.StatusNotFound,
			model.NewKind("op", model.ErrUnauthorized, "no"):                     http.StatusUnauthorized,
			model.NewKind("op", model.ErrInvalidInput, "bad"):                    http.StatusBadRequest,
			model.NewKind("op", model.ErrUpstreamUnavailable, "down"):            http.StatusServiceUnavailable,
			errors.New("disk on fire"):                                           http.StatusInternalServerError,
		}

		Convey("Then each maps to its status", func() {
			for err, want := range cases {
				So(statusFor(err), ShouldEqual, want)
			}
		})

		Convey("Then a parse failure is a bad request", func() {
			err := badRequest("api.test", errors.New("unexpected EOF"))
			So(statusFor(err), ShouldEqual, http.StatusBadRequest)
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		})

		Convey("When an internal error is written", func() {
			rec := httptest.NewRecorder()
			writeError(rec, errors.New("dsn password=hunter2 rejected"))
			var body types.ActionResult
			So(json.NewDecoder(rec.Body).Decode(&body), ShouldBeNil)

			Convey("Then its message is hidden", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				So(body.Error, ShouldEqual, "Internal Server Error")
			})
		})

		Convey("When a domain error is written", func() {
			rec := httptest.NewRecorder()
			writeResult(rec, model.NewKind("op", model.ErrPreconditionFailed, "nobody is performing"))
			var body types.ActionResult
			So(json.NewDecoder(rec.Body).Decode(&body), ShouldBeNil)

			Convey("Then the client sees the message", func() {
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(body, ShouldResemble, types.Failed("nobody is performing"))
			})
		})
	})
}

func TestErrorLabels(t *testing.T) {
	Convey("Given response status codes", t, func() {
		Convey("Then they get metric labels", func() {
			So(getErrorType(http.StatusServiceUnavailable), ShouldEqual, "upstream_unavailable")
			So(getErrorType(http.StatusInternalServerError), ShouldEqual, "server_error")
			So(getErrorType(http.StatusConflict), ShouldEqual, "conflict")
			So(getErrorType(http.StatusUnauthorized), ShouldEqual, "unauthorized")
			So(getErrorType(http.StatusNotFound), ShouldEqual, "not_found")
			So(getErrorType(http.StatusBadRequest), ShouldEqual, "client_error")
			So(getErrorSeverity(http.StatusBadGateway), ShouldEqual, "high")
			So(getErrorSeverity(http.StatusConflict), ShouldEqual, "medium")
			So(getErrorSeverity(http.StatusOK), ShouldEqual, "low")
		})
	})

	Convey("Given a handler behind the metrics middleware", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, model.NewKind("op", model.ErrNotFound, "gone"))
		}, "probe")
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

		Convey("Then the status reaches the client unchanged", func() {
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
