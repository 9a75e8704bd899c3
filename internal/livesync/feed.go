// Package livesync keeps client read models of a live event in step with the
// store. Every read model is fed twice: by change feed pushes, which are fast
// but may be lost, and by a timed poll of the same read, which is slow but
// always converges. Both go through a gate that only lets real differences
// through.
package livesync

import (
	"context"
	"encoding/json"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/feed"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// Reader is the read side a client can reach. The service implements it in
// process and Client implements it over HTTP.
type Reader interface {
	Event(ctx context.Context, eventID string) (model.LiveEvent, error)
	ActiveEvent(ctx context.Context, sessionID string, eventType model.EventType) (model.LiveEvent, error)
	Lineup(ctx context.Context, eventID string) ([]model.LineupEntry, error)
	Candidate(ctx context.Context, candidateID string) (model.Candidate, error)
	VoteTally(ctx context.Context, sessionID string) (types.TallyResponse, error)
	JuryScores(ctx context.Context, f repository.ScoreFilter) ([]model.JuryScore, error)
	Ranking(ctx context.Context, sessionID string, eventType model.EventType, category string) (types.RankingResponse, error)
}

// Subscription delivers changes until its channel closes.
type Subscription interface {
	C() <-chan model.Change
	Close()
}

// Feed opens change subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, filter model.ChangeFilter) (Subscription, error)
}

// BrokerFeed subscribes to an in-process broker.
type BrokerFeed struct {
	Broker *feed.Broker
}

// Subscribe implements Feed.
func (b BrokerFeed) Subscribe(ctx context.Context, filter model.ChangeFilter) (Subscription, error) {
	return b.Broker.Subscribe(ctx, filter), nil
}

// decodeRow returns the row of c as T. Rows published in process are already
// typed; rows received over the wire are generic JSON values.
func decodeRow[T any](c model.Change) (T, bool) {
	var zero T
	switch row := c.Row.(type) {
	case nil:
		return zero, false
	case T:
		return row, true
	case *T:
		if row == nil {
			return zero, false
		}
		return *row, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(row, &out); err != nil {
			return zero, false
		}
		return out, true
	default:
		raw, err := json.Marshal(row)
		if err != nil {
			return zero, false
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, false
		}
		return out, true
	}
}
