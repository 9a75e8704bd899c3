// Package notify sends push notifications to audience devices through an
// external push service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

const defaultTimeout = 5 * time.Second

// Notification is one broadcast to the devices of a session.
type Notification struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

// Report counts the delivery outcome per device.
type Report struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Expired int `json:"expired"`
}

// Notifier delivers a notification to every subscribed device.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (Report, error)
}

// NopNotifier accepts everything and delivers nothing.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) (Report, error) { return Report{}, nil }

// HTTPNotifier posts notifications as JSON to a push service endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// HTTPOption configures an HTTPNotifier.
type HTTPOption func(*HTTPNotifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPNotifier) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPNotifier) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// NewHTTPNotifier creates a notifier that posts to url.
func NewHTTPNotifier(url string, opts ...HTTPOption) *HTTPNotifier {
	h := &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify implements Notifier. Any non-2xx answer is an upstream failure.
func (h *HTTPNotifier) Notify(ctx context.Context, n Notification) (Report, error) {
	const op = "notify.http"
	body, err := json.Marshal(n)
	if err != nil {
		return Report{}, model.WrapKind(op, model.ErrInvalidInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Report{}, model.WrapKind(op, model.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Report{}, model.WrapKind(op, model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Report{}, model.WrapKind(op, model.ErrUpstreamUnavailable,
			fmt.Errorf("push service answered %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var r Report
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil && err != io.EOF {
		return Report{}, model.WrapKind(op, model.ErrUpstreamUnavailable, fmt.Errorf("decode report: %w", err))
	}
	return r, nil
}
