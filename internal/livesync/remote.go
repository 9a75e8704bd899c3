package livesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

const defaultClientTimeout = 10 * time.Second

// Client reads the HTTP API and opens change streams over WebSocket. It
// implements both Reader and Feed.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer

	mu    sync.RWMutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, model.WrapKind("livesync.NewClient", model.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, model.NewKind("livesync.NewClient", model.ErrInvalidInput, "base url must be http or https")
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: defaultClientTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return ""
	}
	return "Bearer " + c.token
}

// kindForStatus maps an API status code back to an error kind.
func kindForStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrPreconditionFailed
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrUnauthorized
	case http.StatusBadRequest:
		return model.ErrInvalidInput
	default:
		return model.ErrUpstreamUnavailable
	}
}

// Call sends in as JSON to path and decodes the response into out. Either
// may be nil. API errors come back with their kind.
func (c *Client) Call(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return model.WrapKind(op, model.ErrInvalidInput, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return model.WrapKind(op, model.ErrInvalidInput, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b := c.bearer(); b != "" {
		req.Header.Set("Authorization", b)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.WrapKind(op, model.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var res types.ActionResult
		_ = json.NewDecoder(resp.Body).Decode(&res)
		msg := res.Error
		if msg == "" {
			msg = resp.Status
		}
		return model.NewKind(op, kindForStatus(resp.StatusCode), msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return model.WrapKind(op, model.ErrUpstreamUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Event implements Reader.
func (c *Client) Event(ctx context.Context, eventID string) (model.LiveEvent, error) {
	var ev model.LiveEvent
	err := c.Call(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID), nil, &ev)
	return ev, err
}

// ActiveEvent implements Reader.
func (c *Client) ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error) {
	var ev model.LiveEvent
	path := "/sessions/" + url.PathEscape(sessionID) + "/events/active?type=" + url.QueryEscape(string(eventType))
	err := c.Call(ctx, http.MethodGet, path, nil, &ev)
	return ev, err
}

// Lineup implements Reader.
func (c *Client) Lineup(ctx context.Context, eventID string) ([]model.LineupEntry, error) {
	var entries []model.LineupEntry
	err := c.Call(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID)+"/lineup", nil, &entries)
	return entries, err
}

// Candidate implements Reader.
func (c *Client) Candidate(ctx context.Context, candidateID string) (model.Candidate, error) {
	var cand model.Candidate
	err := c.Call(ctx, http.MethodGet, "/candidates/"+url.PathEscape(candidateID), nil, &cand)
	return cand, err
}

// VoteTally implements Reader.
func (c *Client) VoteTally(ctx context.Context, sessionID string) (types.TallyResponse, error) {
	var t types.TallyResponse
	err := c.Call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/tally", nil, &t)
	return t, err
}

// JuryScores implements Reader.
func (c *Client) JuryScores(ctx context.Context, f repository.ScoreFilter) ([]model.JuryScore, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"session":   f.SessionID,
		"juror":     f.JurorID,
		"candidate": f.CandidateID,
		"type":      string(f.EventType),
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	var scores []model.JuryScore
	err := c.Call(ctx, http.MethodGet, "/jury/scores?"+q.Encode(), nil, &scores)
	return scores, err
}

// Ranking implements Reader.
func (c *Client) Ranking(ctx context.Context, sessionID string, eventType model.EventType, category string) (types.RankingResponse, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", string(eventType))
	}
	if category != "" {
		q.Set("category", category)
	}
	var r types.RankingResponse
	err := c.Call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/ranking?"+q.Encode(), nil, &r)
	return r, err
}

// Subscribe implements Feed over the /ws/changes stream.
func (c *Client) Subscribe(ctx context.Context, filter model.ChangeFilter) (Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/changes"
	q := url.Values{}
	q.Set("table", filter.Table)
	if filter.Op != "" {
		q.Set("op", string(filter.Op))
	}
	if filter.Key != "" {
		q.Set("key", filter.Key)
		q.Set("value", filter.Value)
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	if b := c.bearer(); b != "" {
		h.Set("Authorization", b)
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, model.WrapKind("livesync.Subscribe", model.ErrUpstreamUnavailable, err)
	}
	return newWSSubscription(ctx, conn, filter), nil
}

type wsSubscription struct {
	conn *websocket.Conn
	ch   chan model.Change
	once sync.Once
	stop chan struct{}
}

func newWSSubscription(ctx context.Context, conn *websocket.Conn, filter model.ChangeFilter) *wsSubscription {
	s := &wsSubscription{
		conn: conn,
		ch:   make(chan model.Change, 64),
		stop: make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stop:
		}
	}()
	go s.read(filter)
	return s
}

func (s *wsSubscription) read(filter model.ChangeFilter) {
	defer close(s.ch)
	for {
		var c model.Change
		if err := s.conn.ReadJSON(&c); err != nil {
			return
		}
		if !filter.Matches(c) {
			continue
		}
		select {
		case s.ch <- c:
		case <-s.stop:
			return
		}
	}
}

func (s *wsSubscription) C() <-chan model.Change { return s.ch }

func (s *wsSubscription) Close() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}
