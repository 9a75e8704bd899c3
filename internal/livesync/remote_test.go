package livesync_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/livesync"
	. "github.com/smartystreets/goconvey/convey"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "ev-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(types.Failed("live event " + r.PathValue("id")))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(types.Failed("missing token"))
			return
		}
		_ = json.NewEncoder(w).Encode(model.LiveEvent{ID: "ev-1", SessionID: session, EventType: model.EventFinal})
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /ws/changes", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(model.Change{
			Table: model.TableLiveEvents, Op: model.OpInsert, ID: "other",
			Keys: map[string]string{"session_id": "elsewhere"},
		})
		_ = conn.WriteJSON(model.Change{
			Table: q.Get("table"), Op: model.ChangeOp(q.Get("op")), ID: "ev-2",
			Keys: map[string]string{q.Get("key"): q.Get("value"), "event_type": "final"},
			Row:  model.LiveEvent{ID: "ev-2", SessionID: session, EventType: model.EventFinal},
		})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	Convey("Given a client of a remote server", t, func() {
		srv := fakeAPI(t)
		c, err := livesync.NewClient(srv.URL, livesync.WithToken("tok"))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When it reads an event", func() {
			ev, err := c.Event(ctx, "ev-1")

			Convey("Then the body is decoded", func() {
				So(err, ShouldBeNil)
				So(ev.EventType, ShouldEqual, model.EventFinal)
			})
		})

		Convey("When the server answers with an error", func() {
			_, err := c.Event(ctx, "ev-404")

			Convey("Then the status maps back to its kind", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(model.Message(err), ShouldEqual, "live event ev-404")
			})
		})

		Convey("When the token is dropped", func() {
			c.SetToken("")
			_, err := c.Event(ctx, "ev-1")

			Convey("Then the request is unauthorized", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When it subscribes to event inserts", func() {
			sub, err := c.Subscribe(ctx, model.ChangeFilter{
				Table: model.TableLiveEvents, Op: model.OpInsert, Key: "session_id", Value: session,
			})
			So(err, ShouldBeNil)
			defer sub.Close()

			var got []model.Change
			timeout := time.After(2 * time.Second)
		loop:
			for {
				select {
				case ch, ok := <-sub.C():
					if !ok {
						break loop
					}
					got = append(got, ch)
				case <-timeout:
					break loop
				}
			}

			Convey("Then only matching changes arrive and the channel closes with the socket", func() {
				So(got, ShouldHaveLength, 1)
				So(got[0].ID, ShouldEqual, "ev-2")
			})
		})

		Convey("When the client feeds a discovery", func() {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			id, err := livesync.NewEventDiscoverySync(noActiveEvent{}, session, model.EventFinal,
				livesync.WithFeed(c), livesync.WithPollInterval(time.Hour)).Discover(ctx)

			Convey("Then the pushed row is decoded from the wire", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "ev-2")
			})
		})
	})

	Convey("Given a base url that is not http", t, func() {
		_, err := livesync.NewClient("ftp://venue")

		Convey("Then the client is refused", func() {
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

type noActiveEvent struct{ livesync.Reader }

func (noActiveEvent) ActiveEvent(context.Context, string, model.EventType) (model.LiveEvent, error) {
	return model.LiveEvent{}, model.NewKind("test", model.ErrNotFound, "none")
}
