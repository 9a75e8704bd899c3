// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// EventDependencies defines the live event and lineup operations.
type EventDependencies interface {
	CreateEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error)
	ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error)
	Event(ctx context.Context, eventID string) (model.LiveEvent, error)
	Lineup(ctx context.Context, eventID string) ([]model.LineupEntry, error)
	EventTally(ctx context.Context, eventID string) (types.TallyResponse, error)
	SetEventStatus(ctx context.Context, eventID string, status model.EventStatus) error
	Advance(ctx context.Context, eventID string) error
	OpenVoting(ctx context.Context, eventID string) error
	CloseVoting(ctx context.Context, eventID string) error
	MarkAbsent(ctx context.Context, eventID, entryID string) error
	SetReplay(ctx context.Context, eventID, entryID string) error
	ReorderLineup(ctx context.Context, eventID string, candidateIDs []string) error
	AddReplacement(ctx context.Context, eventID, candidateID string, position int) (model.LineupEntry, error)
	Checkin(ctx context.Context, eventID, candidateID string) (model.LineupEntry, error)
	RevealWinner(ctx context.Context, eventID, candidateID string) error
	ResetWinnerReveal(ctx context.Context, eventID string) error
}

// EventsHandler handles live event and control room requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleCreate handles POST /sessions/{sid}/events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateEventRequest
	if err := decode(r, "api.create_event", &req); err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.deps.CreateEvent(r.Context(), r.PathValue("sid"), req.EventType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// HandleActive handles GET /sessions/{sid}/events/active?type=.
func (h *EventsHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	ev, err := h.deps.ActiveEvent(r.Context(), r.PathValue("sid"), model.EventType(r.URL.Query().Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ev, err := h.deps.Event(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleLineup handles GET /events/{id}/lineup.
func (h *EventsHandler) HandleLineup(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Lineup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleTally handles GET /events/{id}/tally.
func (h *EventsHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.EventTally(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleStatus handles POST /events/{id}/status.
func (h *EventsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var req types.StatusRequest
	if err := decode(r, "api.event_status", &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.deps.SetEventStatus(r.Context(), r.PathValue("id"), req.Status))
}

// HandleAdvance handles POST /events/{id}/advance.
func (h *EventsHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.Advance(r.Context(), r.PathValue("id")))
}

// HandleOpenVoting handles POST /events/{id}/voting/open.
func (h *EventsHandler) HandleOpenVoting(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.OpenVoting(r.Context(), r.PathValue("id")))
}

// HandleCloseVoting handles POST /events/{id}/voting/close.
func (h *EventsHandler) HandleCloseVoting(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.CloseVoting(r.Context(), r.PathValue("id")))
}

// HandleAbsent handles POST /events/{id}/lineup/{entryID}/absent.
func (h *EventsHandler) HandleAbsent(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.MarkAbsent(r.Context(), r.PathValue("id"), r.PathValue("entryID")))
}

// HandleReplay handles POST /events/{id}/lineup/{entryID}/replay.
func (h *EventsHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.SetReplay(r.Context(), r.PathValue("id"), r.PathValue("entryID")))
}

// HandleReorder handles PUT /events/{id}/lineup/order.
func (h *EventsHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var req types.ReorderRequest
	if err := decode(r, "api.reorder", &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.deps.ReorderLineup(r.Context(), r.PathValue("id"), req.CandidateIDs))
}

// HandleAddReplacement handles POST /events/{id}/lineup.
func (h *EventsHandler) HandleAddReplacement(w http.ResponseWriter, r *http.Request) {
	var req types.InsertRequest
	if err := decode(r, "api.add_replacement", &req); err != nil {
		writeError(w, err)
		return
	}
	e, err := h.deps.AddReplacement(r.Context(), r.PathValue("id"), req.CandidateID, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleCheckin handles POST /events/{id}/checkin.
func (h *EventsHandler) HandleCheckin(w http.ResponseWriter, r *http.Request) {
	var req types.CheckinRequest
	if err := decode(r, "api.checkin", &req); err != nil {
		writeError(w, err)
		return
	}
	e, err := h.deps.Checkin(r.Context(), r.PathValue("id"), req.CandidateID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleReveal handles POST /events/{id}/reveal.
func (h *EventsHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	var req types.RevealRequest
	if err := decode(r, "api.reveal", &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.deps.RevealWinner(r.Context(), r.PathValue("id"), req.CandidateID))
}

// HandleResetReveal handles DELETE /events/{id}/reveal.
func (h *EventsHandler) HandleResetReveal(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.deps.ResetWinnerReveal(r.Context(), r.PathValue("id")))
}
