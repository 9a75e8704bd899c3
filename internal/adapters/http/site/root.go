// Package site serves the spectator live page.
package site

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/reveal"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

// ErrRender is returned when the live page template fails.
var ErrRender = errors.New("live page render failed")

var liveTemplate = template.Must(template.ParseFS(templateFS, "templates/live.html")) //nolint:gochecknoglobals // parsed once

// Option configures the live page.
type Option func(*LiveHandler)

// WithPollInterval sets how often the page re-reads the event.
func WithPollInterval(d time.Duration) Option {
	return func(h *LiveHandler) {
		if d > 0 {
			h.poll = d
		}
	}
}

// WithRevealFreshness bounds how old a reveal may be and still be celebrated
// by a page that sees it.
func WithRevealFreshness(d time.Duration) Option {
	return func(h *LiveHandler) {
		if d > 0 {
			h.freshness = d
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *LiveHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// LiveHandler renders the spectator page of a session.
type LiveHandler struct {
	poll      time.Duration
	freshness time.Duration
	log       logger.Logger
}

// NewLiveHandler creates a live page handler.
func NewLiveHandler(opts ...Option) *LiveHandler {
	h := &LiveHandler{poll: 6 * time.Second, freshness: reveal.DefaultFreshness}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Get().Named("site")
	}
	return h
}

type livePage struct {
	SessionID   string
	PollMS      int64
	FreshnessMS int64
}

// HandleLive handles GET /live/{sid}.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := liveTemplate.Execute(&buf, livePage{
		SessionID:   r.PathValue("sid"),
		PollMS:      h.poll.Milliseconds(),
		FreshnessMS: h.freshness.Milliseconds(),
	})
	if err != nil {
		h.log.Error(r.Context(), "render live page", logger.Error(errors.Join(ErrRender, err)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Register attaches the live page and its assets to mux.
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) {
	if mux == nil {
		panic("mux is nil")
	}
	h := NewLiveHandler(opts...)
	mux.HandleFunc("GET /live/{sid}", h.HandleLive)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(FS())))
}
