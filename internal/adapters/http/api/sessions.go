package api

import (
	"context"
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/auth"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// SessionDependencies defines the per-session registry, voting and ranking
// operations.
type SessionDependencies interface {
	UpdateScoringWeights(ctx context.Context, sessionID string, jury, public, social float64) error
	Ranking(ctx context.Context, sessionID string, eventType model.EventType, category string) (types.RankingResponse, error)
	RegisterCandidate(ctx context.Context, sessionID string, req types.CandidateRequest) (model.Candidate, error)
	Candidates(ctx context.Context, sessionID string) ([]model.Candidate, error)
	Candidate(ctx context.Context, candidateID string) (model.Candidate, error)
	RegisterJuror(ctx context.Context, sessionID, name string) (model.Juror, error)
	CastVote(ctx context.Context, sessionID string, req types.VoteRequest) (types.VoteReceipt, error)
	RecordSocialShare(ctx context.Context, sessionID string, req types.ShareRequest) error
	VoteTally(ctx context.Context, sessionID string) (types.TallyResponse, error)
}

// SessionHandler handles session scoped requests.
type SessionHandler struct {
	deps   SessionDependencies
	issuer *auth.TokenIssuer
}

// NewSessionHandler creates a new session handler. Registered jurors get
// their token from issuer.
func NewSessionHandler(deps SessionDependencies, issuer *auth.TokenIssuer) *SessionHandler {
	return &SessionHandler{deps: deps, issuer: issuer}
}

// HandleWeights handles PUT /sessions/{sid}/weights.
func (h *SessionHandler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	var req model.Weights
	if err := decode(r, "api.weights", &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.deps.UpdateScoringWeights(r.Context(), r.PathValue("sid"), req.Jury, req.Public, req.Social))
}

// HandleRanking handles GET /sessions/{sid}/ranking?type=&category=.
func (h *SessionHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.deps.Ranking(r.Context(), r.PathValue("sid"), model.EventType(q.Get("type")), q.Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRegisterCandidate handles POST /sessions/{sid}/candidates.
func (h *SessionHandler) HandleRegisterCandidate(w http.ResponseWriter, r *http.Request) {
	var req types.CandidateRequest
	if err := decode(r, "api.register_candidate", &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.deps.RegisterCandidate(r.Context(), r.PathValue("sid"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleCandidates handles GET /sessions/{sid}/candidates.
func (h *SessionHandler) HandleCandidates(w http.ResponseWriter, r *http.Request) {
	cs, err := h.deps.Candidates(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// HandleCandidate handles GET /candidates/{id}.
func (h *SessionHandler) HandleCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Candidate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRegisterJuror handles POST /sessions/{sid}/jurors. The response
// carries the juror's scoring token.
func (h *SessionHandler) HandleRegisterJuror(w http.ResponseWriter, r *http.Request) {
	var req types.JurorRequest
	if err := decode(r, "api.register_juror", &req); err != nil {
		writeError(w, err)
		return
	}
	j, err := h.deps.RegisterJuror(r.Context(), r.PathValue("sid"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	res := types.JurorRegistration{Juror: j}
	if h.issuer != nil {
		res.Token, res.ExpiresAt, err = h.issuer.Issue(auth.Identity{Subject: j.ID, Role: auth.RoleJuror})
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleVote handles POST /sessions/{sid}/votes. A repeated vote is a
// success with duplicate set.
func (h *SessionHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req types.VoteRequest
	if err := decode(r, "api.vote", &req); err != nil {
		writeError(w, err)
		return
	}
	receipt, err := h.deps.CastVote(r.Context(), r.PathValue("sid"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleShare handles POST /sessions/{sid}/shares.
func (h *SessionHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	var req types.ShareRequest
	if err := decode(r, "api.share", &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.deps.RecordSocialShare(r.Context(), r.PathValue("sid"), req))
}

// HandleTally handles GET /sessions/{sid}/tally.
func (h *SessionHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.VoteTally(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
