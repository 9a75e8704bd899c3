package venuesim

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/repository"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

const totalTolerance = 1e-6

// verify checks what the service reports against what the simulator did.
func (s *show) verify(ctx context.Context, result types.RankingResponse) (types.TallyResponse, error) {
	log.Println("🔍 Verifying results...")

	tally, err := s.public.VoteTally(ctx, s.config.SessionID)
	if err != nil {
		return tally, err
	}
	if err := verifyTally(s.acts, tally); err != nil {
		return tally, err
	}
	log.Println("✅ Vote tally matches the counted ballots")

	if err := verifyRanking(result); err != nil {
		return tally, err
	}
	scores, err := s.admin.JuryScores(ctx, repository.ScoreFilter{SessionID: s.config.SessionID, EventType: s.config.EventType})
	if err != nil {
		return tally, err
	}
	if err := verifyLocalRanking(s.acts, scores, tally, result, s.config.JuryMode); err != nil {
		return tally, err
	}
	log.Println("✅ Ranking is ordered and matches a local computation")

	ev, err := s.public.Event(ctx, s.event.ID)
	if err != nil {
		return tally, err
	}
	if ev.WinnerCandidateID == nil || *ev.WinnerCandidateID != result.Rankings[0].CandidateID {
		return tally, fmt.Errorf("event winner %v is not the ranking leader %s",
			ev.WinnerCandidateID, result.Rankings[0].CandidateID)
	}
	if ev.CurrentCandidateID != nil || ev.IsVotingOpen {
		return tally, fmt.Errorf("completed event still points at a performer")
	}
	log.Println("✅ Winner revealed on the event")

	displayRanking(result, s.config.Verbose)
	return tally, nil
}

// verifyTally checks that every counted ballot, and only those, is in the tally.
func verifyTally(acts []Act, tally types.TallyResponse) error {
	for _, a := range acts {
		if got := tally.Counts[a.CandidateID]; got != a.Votes {
			return fmt.Errorf("%s: tally %d, counted ballots %d", a.StageName, got, a.Votes)
		}
	}
	return nil
}

// verifyLocalRanking recomputes the ranking from the raw scores, votes and
// shares and compares each candidate's total.
func verifyLocalRanking(acts []Act, scores []model.JuryScore, tally types.TallyResponse,
	got types.RankingResponse, mode ranking.JuryMode,
) error {
	byCandidate := make(map[string][]float64)
	for _, sc := range scores {
		byCandidate[sc.CandidateID] = append(byCandidate[sc.CandidateID], sc.TotalScore)
	}
	inputs := make([]ranking.Input, len(acts))
	for i, a := range acts {
		inputs[i] = ranking.Input{
			CandidateID: a.CandidateID,
			StageName:   a.StageName,
			JuryScores:  byCandidate[a.CandidateID],
			PublicVotes: tally.Counts[a.CandidateID],
			SocialVotes: a.Shares,
		}
	}
	want := make(map[string]float64, len(acts))
	for _, r := range ranking.New(ranking.WithJuryMode(mode)).Compute(inputs, got.Weights) {
		want[r.CandidateID] = r.Total
	}
	if len(got.Rankings) > len(want) {
		return fmt.Errorf("service ranked %d candidates, only %d performed", len(got.Rankings), len(want))
	}
	for _, r := range got.Rankings {
		w, ok := want[r.CandidateID]
		if !ok {
			return fmt.Errorf("unexpected candidate %s in ranking", r.CandidateID)
		}
		if math.Abs(w-r.Total) > totalTolerance {
			return fmt.Errorf("%s: service total %.4f, local total %.4f", r.StageName, r.Total, w)
		}
	}
	return nil
}

// verifyRanking checks that ranks are dense from 1 and totals do not increase.
func verifyRanking(ranking types.RankingResponse) error {
	if len(ranking.Rankings) == 0 {
		return fmt.Errorf("empty ranking")
	}
	for i, r := range ranking.Rankings {
		if r.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d", i, r.Rank)
		}
		if i > 0 && r.Total > ranking.Rankings[i-1].Total {
			return fmt.Errorf("ranking not properly sorted: entry %d has a higher total than entry %d", i, i-1)
		}
	}
	return nil
}

func displayRanking(ranking types.RankingResponse, verbose bool) {
	topN := 10
	if len(ranking.Rankings) < topN {
		topN = len(ranking.Rankings)
	}
	log.Printf("🏆 Top %d (jury %.0f%%, public %.0f%%, social %.0f%%):", topN,
		ranking.Weights.Jury, ranking.Weights.Public, ranking.Weights.Social)
	for _, r := range ranking.Rankings[:topN] {
		if verbose {
			log.Printf("   %d. %s - %.2f (jury %.1f, votes %d)", r.Rank, r.StageName, r.Total, r.JuryTotal, r.PublicVotes)
			continue
		}
		log.Printf("   %d. %s - %.2f", r.Rank, r.StageName, r.Total)
	}
}
