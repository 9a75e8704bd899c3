package venuesim

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/livesync"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

type ballot struct {
	fingerprint string
	retry       bool
}

// castVotes has the audience vote for the act on stage. Each voter votes
// with probability appeal; some send the same vote twice.
func castVotes(ctx context.Context, config *Config, public *livesync.Client, eventID string,
	audience []string, act *Act, appeal float64,
) {
	var ballots []ballot
	for _, fp := range audience {
		if getRandomFloat() >= appeal {
			continue
		}
		ballots = append(ballots, ballot{fingerprint: fp, retry: getRandomFloat() < config.DuplicateRate})
	}

	var (
		counted    int64
		shared     int64
		duplicate  int64
		failed     int64
		submitted  int64
		lastReport atomic.Int64
	)
	reportInterval := time.Second

	ballotChan := make(chan ballot, config.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range ballotChan {
				req := types.VoteRequest{CandidateID: act.CandidateID, Fingerprint: b.fingerprint, LiveEventID: eventID}
				tries := 1
				if b.retry {
					tries = 2
				}
				for range tries {
					var receipt types.VoteReceipt
					err := public.Call(ctx, http.MethodPost, "/sessions/"+config.SessionID+"/votes", req, &receipt)
					atomic.AddInt64(&submitted, 1)
					switch {
					case err != nil:
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							logger.Get().Warn(ctx, "vote failed", logger.String("fingerprint", b.fingerprint), logger.Error(err))
						}
					case receipt.Duplicate:
						atomic.AddInt64(&duplicate, 1)
					default:
						atomic.AddInt64(&counted, 1)
						if getRandomFloat() < config.ShareRate && share(ctx, config, public, act.CandidateID) {
							atomic.AddInt64(&shared, 1)
						}
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
					fmt.Printf("\r🗳  %s: %d/%d ballots (counted: %d, duplicate: %d, failed: %d)",
						act.StageName, atomic.LoadInt64(&submitted), len(ballots),
						atomic.LoadInt64(&counted), atomic.LoadInt64(&duplicate), atomic.LoadInt64(&failed))
				}
			}
		}()
	}

	go func() {
		defer close(ballotChan)
		for _, b := range ballots {
			select {
			case <-ctx.Done():
				return
			case ballotChan <- b:
			}
		}
	}()
	wg.Wait()

	act.Votes = int(counted)
	act.Duplicates = int(duplicate)
	act.Shares = int(shared)
	act.Failed = int(failed)
	if config.Verbose {
		log.Printf("🗳  %s: counted %d, duplicate %d, failed %d", act.StageName, act.Votes, act.Duplicates, act.Failed)
	}
}

var platforms = []string{"instagram", "tiktok", "facebook"} //nolint:gochecknoglobals // share targets

func share(ctx context.Context, config *Config, public *livesync.Client, candidateID string) bool {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(platforms))))
	req := types.ShareRequest{CandidateID: candidateID, Platform: platforms[n.Int64()]}
	return public.Call(ctx, http.MethodPost, "/sessions/"+config.SessionID+"/shares", req, nil) == nil
}
