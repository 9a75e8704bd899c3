package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const (
	pingInterval = 15 * time.Second
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{ //nolint:gochecknoglobals // stateless upgrader
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamHandler forwards change feed messages to WebSocket clients.
type StreamHandler struct {
	broker  *feed.Broker
	log     logger.Logger
	clients atomic.Int64
}

// NewStreamHandler creates a stream handler reading from broker.
func NewStreamHandler(broker *feed.Broker, log logger.Logger) *StreamHandler {
	return &StreamHandler{broker: broker, log: log}
}

// HandleEvent handles GET /ws/events/{id}: every change to the event row
// and to its lineup.
func (h *StreamHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.serve(w, r, []model.ChangeFilter{
		{Table: model.TableLiveEvents, Key: "id", Value: id},
		{Table: model.TableLineupEntries, Key: "live_event_id", Value: id},
	})
}

// HandleChanges handles GET /ws/changes?table=&op=&key=&value=.
func (h *StreamHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	const op = "api.ws_changes"
	q := r.URL.Query()
	f := model.ChangeFilter{
		Table: q.Get("table"),
		Op:    model.ChangeOp(q.Get("op")),
		Key:   q.Get("key"),
		Value: q.Get("value"),
	}
	if f.Table == "" {
		writeError(w, model.NewKind(op, model.ErrInvalidInput, "table is required"))
		return
	}
	if f.Table == model.TableJuryScores {
		id := auth.FromContext(r.Context())
		if !id.IsAdmin() && !(f.Key == "juror_id" && id.IsJuror(f.Value)) {
			writeError(w, model.NewKind(op, model.ErrUnauthorized, "jury scores are private"))
			return
		}
	}
	h.serve(w, r, []model.ChangeFilter{f})
}

// redact strips rows the caller may not read. Vote rows carry device
// fingerprints.
func redact(id auth.Identity, c model.Change) model.Change {
	if c.Table == model.TablePublicVotes && !id.IsAdmin() {
		c.Row = nil
	}
	return c
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, filters []model.ChangeFilter) {
	if h.broker == nil {
		writeError(w, model.NewKind("api.ws", model.ErrUpstreamUnavailable, "change feed is not available"))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	identity := auth.FromContext(r.Context())

	// Subscribe before the upgrade so nothing published after the handshake
	// is missed.
	merged := make(chan model.Change)
	for _, f := range filters {
		sub := h.broker.Subscribe(ctx, f)
		defer sub.Close()
		go func() {
			for c := range sub.C() {
				select {
				case merged <- c:
				case <-ctx.Done():
					return
				}
			}
			// A dropped subscription ends the stream so the client reconnects.
			cancel()
		}()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()
	metrics.UpdateWebsocketClients(int(h.clients.Add(1)))
	defer func() { metrics.UpdateWebsocketClients(int(h.clients.Add(-1))) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case c := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(redact(identity, c)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}
