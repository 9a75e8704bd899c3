package venuesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/livesync"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

// ErrNotCelebrated is returned when the spectator view never saw the reveal.
var ErrNotCelebrated = errors.New("spectator did not celebrate the reveal")

// show carries the clients and ids of one run.
type show struct {
	config  *Config
	admin   *livesync.Client
	public  *livesync.Client
	jurors  []*livesync.Client
	jurorID []string
	event   model.LiveEvent
	cast    []performer
	acts    []Act
	stats   *Stats
}

// Run plays a complete live show against the service and verifies what the
// audience, the jury and the control room see.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("venuesim")

	log.Info(ctx, "starting venue simulation",
		logger.String("baseURL", config.BaseURL),
		logger.String("sessionID", config.SessionID),
		logger.String("eventType", string(config.EventType)),
		logger.Int("candidates", config.Candidates),
		logger.Int("jurors", config.Jurors),
		logger.Int("voters", config.Voters),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
	)

	s, err := newShow(config, stats)
	if err != nil {
		return err
	}

	// Step 1: Check service health
	if err := s.checkServiceHealth(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Control room login
	if err := s.login(ctx); err != nil {
		return fmt.Errorf("admin login failed: %w", err)
	}

	// Step 3: Cast and jury
	if err := s.register(ctx); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	// Step 4: Open the event and check performers in
	if err := s.open(ctx); err != nil {
		return fmt.Errorf("event setup failed: %w", err)
	}

	// Step 5: A spectator follows the show from the start
	celebrated := make(chan model.LiveEvent, 1)
	spectatorCtx, stopSpectator := context.WithCancel(ctx)
	defer stopSpectator()
	dashboard := livesync.NewPublicDashboard(s.public,
		livesync.Target{SessionID: config.SessionID, EventType: config.EventType},
		livesync.OnCelebrate(func(ev model.LiveEvent) {
			select {
			case celebrated <- ev:
			default:
			}
		}),
		livesync.WithSyncOptions(livesync.WithFeed(s.public), livesync.WithPollInterval(config.PollInterval)),
	)
	var spectator sync.WaitGroup
	spectator.Add(1)
	go func() {
		defer spectator.Done()
		if err := dashboard.Run(spectatorCtx); err != nil && spectatorCtx.Err() == nil {
			log.Warn(ctx, "spectator stopped", logger.Error(err))
		}
	}()
	defer spectator.Wait()

	// Step 6: Every act performs, the audience votes and the jury scores
	if err := s.perform(ctx); err != nil {
		return fmt.Errorf("show failed: %w", err)
	}

	// Step 7: Close the show
	if err := s.finish(ctx); err != nil {
		return fmt.Errorf("closing the show failed: %w", err)
	}

	// Step 8: Rank and reveal
	ranking, err := s.rankAndReveal(ctx)
	if err != nil {
		return fmt.Errorf("reveal failed: %w", err)
	}

	// Step 9: The spectator must celebrate
	select {
	case ev := <-celebrated:
		stats.Celebrated = ev.WinnerCandidateID != nil && *ev.WinnerCandidateID == ranking.Rankings[0].CandidateID
	case <-time.After(config.CelebrationWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	stopSpectator()
	if !stats.Celebrated {
		return ErrNotCelebrated
	}

	// Step 10: Verify results
	tally, err := s.verify(ctx, ranking)
	if err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 11: Save the report
	report := Report{
		SessionID: config.SessionID,
		EventID:   s.event.ID,
		Acts:      s.acts,
		Tally:     tally,
		Ranking:   ranking,
		Winner:    stats.Winner,
	}
	if err := saveReport(ctx, config, report); err != nil {
		log.Warn(ctx, "failed to save report", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	log.Info(ctx, "simulation completed successfully")
	return nil
}

func newShow(config *Config, stats *Stats) (*show, error) {
	httpClient := &http.Client{Timeout: config.Timeout}
	admin, err := livesync.NewClient(config.BaseURL, livesync.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	public, err := livesync.NewClient(config.BaseURL, livesync.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return &show{config: config, admin: admin, public: public, stats: stats}, nil
}

// checkServiceHealth verifies the service is running.
func (s *show) checkServiceHealth(ctx context.Context) error {
	logger.Get().Info(ctx, "checking service health")
	var body map[string]string
	if err := s.public.Call(ctx, http.MethodGet, "/healthz", nil, &body); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if body["status"] != "ok" {
		return fmt.Errorf("service reports status %q", body["status"])
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func (s *show) login(ctx context.Context) error {
	var tok types.TokenResponse
	if err := s.public.Call(ctx, http.MethodPost, "/auth/admin", types.AdminAuthRequest{Key: s.config.AdminKey}, &tok); err != nil {
		return err
	}
	s.admin.SetToken(tok.Token)
	return nil
}

func (s *show) register(ctx context.Context) error {
	sid := s.config.SessionID
	if s.config.Weights != (model.Weights{}) {
		if err := s.admin.Call(ctx, http.MethodPut, "/sessions/"+sid+"/weights", s.config.Weights, nil); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
	}
	s.cast = generatePerformers(s.config.Candidates)
	s.acts = make([]Act, len(s.cast))
	for i, p := range s.cast {
		var c model.Candidate
		err := s.admin.Call(ctx, http.MethodPost, "/sessions/"+sid+"/candidates", types.CandidateRequest{
			StageName: p.StageName,
			Category:  s.config.Category,
			Status:    model.QualifiedStatus(s.config.EventType),
		}, &c)
		if err != nil {
			return fmt.Errorf("candidate %s: %w", p.StageName, err)
		}
		s.acts[i] = Act{CandidateID: c.ID, StageName: c.StageName}
		s.stats.CandidatesRegistered++
	}

	for i := 0; i < s.config.Jurors; i++ {
		var reg types.JurorRegistration
		name := fmt.Sprintf("Juror %d", i+1)
		if err := s.admin.Call(ctx, http.MethodPost, "/sessions/"+sid+"/jurors", types.JurorRequest{Name: name}, &reg); err != nil {
			return fmt.Errorf("juror %s: %w", name, err)
		}
		juror, err := livesync.NewClient(s.config.BaseURL, livesync.WithToken(reg.Token))
		if err != nil {
			return err
		}
		s.jurors = append(s.jurors, juror)
		s.jurorID = append(s.jurorID, reg.Juror.ID)
		s.stats.JurorsRegistered++
	}
	logger.Get().Info(ctx, "cast registered",
		logger.Int("candidates", s.stats.CandidatesRegistered),
		logger.Int("jurors", s.stats.JurorsRegistered),
	)
	return nil
}

func (s *show) open(ctx context.Context) error {
	err := s.admin.Call(ctx, http.MethodPost, "/sessions/"+s.config.SessionID+"/events",
		types.CreateEventRequest{EventType: s.config.EventType}, &s.event)
	if err != nil {
		return err
	}
	base := "/events/" + s.event.ID
	for _, a := range s.acts {
		if err := s.public.Call(ctx, http.MethodPost, base+"/checkin", types.CheckinRequest{CandidateID: a.CandidateID}, nil); err != nil {
			return fmt.Errorf("checkin %s: %w", a.StageName, err)
		}
	}
	return s.admin.Call(ctx, http.MethodPost, base+"/status", types.StatusRequest{Status: model.EventLive}, nil)
}

func (s *show) perform(ctx context.Context) error {
	base := "/events/" + s.event.ID
	audience := generateAudience(s.config.Voters)
	for i := range s.acts {
		act := &s.acts[i]
		if err := s.admin.Call(ctx, http.MethodPost, base+"/advance", nil, nil); err != nil {
			return fmt.Errorf("advance to %s: %w", act.StageName, err)
		}
		var ev model.LiveEvent
		if err := s.public.Call(ctx, http.MethodGet, base, nil, &ev); err != nil {
			return err
		}
		if ev.CurrentCandidateID == nil || *ev.CurrentCandidateID != act.CandidateID {
			return fmt.Errorf("expected %s on stage, event points at %v", act.StageName, ev.CurrentCandidateID)
		}

		if err := s.admin.Call(ctx, http.MethodPost, base+"/voting/open", nil, nil); err != nil {
			return err
		}
		castVotes(ctx, s.config, s.public, s.event.ID, audience, act, s.cast[i].Appeal)
		if err := s.admin.Call(ctx, http.MethodPost, base+"/voting/close", nil, nil); err != nil {
			return err
		}
		if err := s.score(ctx, act.CandidateID, s.cast[i].Talent); err != nil {
			return err
		}

		s.stats.Acts++
		s.stats.VotesSubmitted += act.Votes + act.Duplicates + act.Failed
		s.stats.VotesCounted += act.Votes
		s.stats.VotesDuplicate += act.Duplicates
		s.stats.VotesFailed += act.Failed
		s.stats.SharesRecorded += act.Shares
		logger.Get().Info(ctx, "act finished",
			logger.String("stageName", act.StageName),
			logger.Int("votes", act.Votes),
			logger.Int("duplicates", act.Duplicates),
			logger.Int("shares", act.Shares),
		)
	}
	fmt.Println()
	return nil
}

// score has every juror rate the act at once.
func (s *show) score(ctx context.Context, candidateID string, talent float64) error {
	errs := make([]error, len(s.jurors))
	var wg sync.WaitGroup
	for i, juror := range s.jurors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = juror.Call(ctx, http.MethodPost, "/jury/scores", types.JuryScoreRequest{
				JurorID:     s.jurorID[i],
				CandidateID: candidateID,
				EventType:   s.config.EventType,
				Scores:      generateScores(s.config.Criteria, talent),
			}, nil)
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.stats.ScoresSubmitted += len(s.jurors)
	return nil
}

// finish completes the last act and checks that the lineup reports itself
// exhausted before the event is completed.
func (s *show) finish(ctx context.Context) error {
	base := "/events/" + s.event.ID
	if err := s.admin.Call(ctx, http.MethodPost, base+"/advance", nil, nil); err != nil {
		return err
	}
	err := s.admin.Call(ctx, http.MethodPost, base+"/advance", nil, nil)
	if !errors.Is(err, model.ErrPreconditionFailed) {
		return fmt.Errorf("advance past the last act: want precondition failure, got %v", err)
	}
	return s.admin.Call(ctx, http.MethodPost, base+"/status", types.StatusRequest{Status: model.EventCompleted}, nil)
}

func (s *show) rankAndReveal(ctx context.Context) (types.RankingResponse, error) {
	ranking, err := s.admin.Ranking(ctx, s.config.SessionID, s.config.EventType, s.config.Category)
	if err != nil {
		return ranking, err
	}
	if len(ranking.Rankings) == 0 {
		return ranking, errors.New("empty ranking")
	}
	top := ranking.Rankings[0]
	reveal := types.RevealRequest{CandidateID: top.CandidateID}
	base := "/events/" + s.event.ID
	if err := s.admin.Call(ctx, http.MethodPost, base+"/reveal", reveal, nil); err != nil {
		return ranking, err
	}
	// A second press of the reveal button must be harmless.
	if err := s.admin.Call(ctx, http.MethodPost, base+"/reveal", reveal, nil); err != nil {
		return ranking, fmt.Errorf("repeated reveal: %w", err)
	}
	s.stats.Winner = top.StageName
	logger.Get().Info(ctx, "winner revealed",
		logger.String("candidateID", top.CandidateID),
		logger.String("stageName", top.StageName),
		logger.Float64("total", top.Total),
	)
	return ranking, nil
}

// saveReport writes the show report as JSON.
func saveReport(ctx context.Context, config *Config, report Report) error {
	filename := config.OutputFile
	if filename == "" {
		filename = "venue_report_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final statistics.
func displayFinalStats(stats *Stats) {
	var countedRate, votesPerSecond float64
	if stats.VotesSubmitted > 0 {
		countedRate = float64(stats.VotesCounted) / float64(stats.VotesSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.VotesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("candidates", stats.CandidatesRegistered),
		logger.Int("jurors", stats.JurorsRegistered),
		logger.Int("acts", stats.Acts),
		logger.Int("votesSubmitted", stats.VotesSubmitted),
		logger.Int("votesCounted", stats.VotesCounted),
		logger.Int("votesDuplicate", stats.VotesDuplicate),
		logger.Int("votesFailed", stats.VotesFailed),
		logger.Int("sharesRecorded", stats.SharesRecorded),
		logger.Int("scoresSubmitted", stats.ScoresSubmitted),
		logger.Bool("celebrated", stats.Celebrated),
		logger.String("winner", stats.Winner),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("countedRate", countedRate),
		logger.Float64("votesPerSecond", votesPerSecond),
	)
}
