// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	SessionDependencies
	JuryDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	issuer *auth.TokenIssuer
	log    logger.Logger

	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	authHandler    *AuthHandler
	eventsHandler  *EventsHandler
	sessionHandler *SessionHandler
	juryHandler    *JuryHandler
	streamHandler  *StreamHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers. Tokens are issued
// and checked by issuer; the change streams read from broker.
func NewServer(deps Dependencies, issuer *auth.TokenIssuer, broker *feed.Broker, opts ...Option) *Server {
	s := &Server{issuer: issuer}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.authHandler = NewAuthHandler(issuer)
	s.eventsHandler = NewEventsHandler(deps)
	s.sessionHandler = NewSessionHandler(deps, issuer)
	s.juryHandler = NewJuryHandler(deps)
	s.streamHandler = NewStreamHandler(broker, s.log)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(s.authenticate(h), endpoint))
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /auth/admin", "auth_admin", s.authHandler.HandleAdmin)

	ev := s.eventsHandler
	route("POST /sessions/{sid}/events", "create_event", ev.HandleCreate)
	route("GET /sessions/{sid}/events/active", "active_event", ev.HandleActive)
	route("GET /events/{id}", "event", ev.HandleGet)
	route("GET /events/{id}/lineup", "lineup", ev.HandleLineup)
	route("GET /events/{id}/tally", "event_tally", ev.HandleTally)
	route("POST /events/{id}/status", "event_status", ev.HandleStatus)
	route("POST /events/{id}/advance", "advance", ev.HandleAdvance)
	route("POST /events/{id}/voting/open", "open_voting", ev.HandleOpenVoting)
	route("POST /events/{id}/voting/close", "close_voting", ev.HandleCloseVoting)
	route("POST /events/{id}/lineup/{entryID}/absent", "mark_absent", ev.HandleAbsent)
	route("POST /events/{id}/lineup/{entryID}/replay", "replay", ev.HandleReplay)
	route("PUT /events/{id}/lineup/order", "reorder", ev.HandleReorder)
	route("POST /events/{id}/lineup", "add_replacement", ev.HandleAddReplacement)
	route("POST /events/{id}/checkin", "checkin", ev.HandleCheckin)
	route("POST /events/{id}/reveal", "reveal", ev.HandleReveal)
	route("DELETE /events/{id}/reveal", "reset_reveal", ev.HandleResetReveal)

	ss := s.sessionHandler
	route("PUT /sessions/{sid}/weights", "weights", ss.HandleWeights)
	route("GET /sessions/{sid}/ranking", "ranking", ss.HandleRanking)
	route("POST /sessions/{sid}/candidates", "register_candidate", ss.HandleRegisterCandidate)
	route("GET /sessions/{sid}/candidates", "candidates", ss.HandleCandidates)
	route("GET /candidates/{id}", "candidate", ss.HandleCandidate)
	route("POST /sessions/{sid}/jurors", "register_juror", ss.HandleRegisterJuror)
	route("POST /sessions/{sid}/votes", "vote", ss.HandleVote)
	route("POST /sessions/{sid}/shares", "share", ss.HandleShare)
	route("GET /sessions/{sid}/tally", "tally", ss.HandleTally)

	jh := s.juryHandler
	route("POST /jury/scores", "submit_score", jh.HandleSubmit)
	route("GET /jury/scores", "jury_scores", jh.HandleList)
	route("DELETE /jury/scores", "reset_scores", jh.HandleReset)

	// Streams skip MetricsMiddleware: they live for the whole connection.
	mux.HandleFunc("GET /ws/events/{id}", s.authenticate(s.streamHandler.HandleEvent))
	mux.HandleFunc("GET /ws/changes", s.authenticate(s.streamHandler.HandleChanges))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v.
func decode(r *http.Request, op string, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(op, err)
	}
	return nil
}
