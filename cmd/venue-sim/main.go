package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/venuesim"
)

const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultCriteria = "voice=10,interpretation=10,stage_presence=10"
	showTimeout     = 30 * time.Minute
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		adminKey   = flag.String("admin-key", os.Getenv("ADMIN_KEY"), "Control room key")
		sessionID  = flag.String("session", "sim-"+time.Now().Format("20060102-150405"), "Session id")
		eventType  = flag.String("type", string(model.EventFinal), "Event type: semifinal or final")
		category   = flag.String("category", "adult", "Candidate category")
		candidates = flag.Int("candidates", venuesim.DefaultCandidates, "Performers in the lineup")
		jurors     = flag.Int("jurors", venuesim.DefaultJurors, "Jurors")
		voters     = flag.Int("voters", venuesim.DefaultVoters, "Audience devices")
		duplicates = flag.Float64("duplicates", venuesim.DefaultDuplicateRate, "Fraction of voters sending their vote twice")
		shares     = flag.Float64("shares", venuesim.DefaultShareRate, "Fraction of counted voters who also share the act")
		weights    = flag.String("weights", "", "Session weights as jury,public,social")
		juryMode   = flag.String("jury-mode", "sum", "How the service combines jury totals: sum or average")
		criteria   = flag.String("criteria", defaultCriteria, "Jury criteria as name=max pairs")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent voters")
		timeout    = flag.Duration("timeout", venuesim.DefaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Report file (default: venue_report_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file (default: venue_sim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		venuesim.ShowHelp()
		return
	}

	if err := venuesim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	crit, err := venuesim.ParseCriteria(*criteria)
	if err != nil {
		os.Stderr.WriteString("Invalid criteria: " + err.Error() + "\n")
		os.Exit(2)
	}
	w, err := venuesim.ParseWeights(*weights)
	if err != nil {
		os.Stderr.WriteString("Invalid weights: " + err.Error() + "\n")
		os.Exit(2)
	}
	mode, err := ranking.ParseJuryMode(*juryMode)
	if err != nil {
		os.Stderr.WriteString("Invalid jury mode: " + err.Error() + "\n")
		os.Exit(2)
	}
	if !model.EventType(*eventType).Valid() {
		os.Stderr.WriteString("Invalid event type: " + *eventType + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), showTimeout)
	defer cancel()

	config := &venuesim.Config{
		BaseURL:         *baseURL,
		AdminKey:        *adminKey,
		SessionID:       *sessionID,
		EventType:       model.EventType(*eventType),
		Category:        *category,
		Candidates:      *candidates,
		Jurors:          *jurors,
		Voters:          *voters,
		DuplicateRate:   *duplicates,
		ShareRate:       *shares,
		Weights:         w,
		JuryMode:        mode,
		Criteria:        crit,
		Workers:         *workers,
		Timeout:         *timeout,
		PollInterval:    venuesim.DefaultPollInterval,
		CelebrationWait: venuesim.DefaultCelebrationWait,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	if err := venuesim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}
