package api

import (
	"context"
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// JuryDependencies defines the jury score operations.
type JuryDependencies interface {
	SubmitJuryScore(ctx context.Context, req types.JuryScoreRequest) (model.JuryScore, error)
	JuryScores(ctx context.Context, f repository.ScoreFilter) ([]model.JuryScore, error)
	ResetJuryScores(ctx context.Context, sessionID, candidateID string, eventType model.EventType) (int64, error)
}

// JuryHandler handles jury score requests.
type JuryHandler struct {
	deps JuryDependencies
}

// NewJuryHandler creates a new jury handler.
func NewJuryHandler(deps JuryDependencies) *JuryHandler {
	return &JuryHandler{deps: deps}
}

type resetResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

// HandleSubmit handles POST /jury/scores.
func (h *JuryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.JuryScoreRequest
	if err := decode(r, "api.submit_score", &req); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.deps.SubmitJuryScore(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleList handles GET /jury/scores?session=&juror=&candidate=&type=.
func (h *JuryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scores, err := h.deps.JuryScores(r.Context(), repository.ScoreFilter{
		SessionID:   q.Get("session"),
		JurorID:     q.Get("juror"),
		CandidateID: q.Get("candidate"),
		EventType:   model.EventType(q.Get("type")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// HandleReset handles DELETE /jury/scores?session=&candidate=&type=.
func (h *JuryHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := h.deps.ResetJuryScores(r.Context(), q.Get("session"), q.Get("candidate"), model.EventType(q.Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Success: true, Deleted: n})
}
