package venuesim

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		logFile = "venue_sim_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	if err := logger.InitWith(multiWriter, "text"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ParseCriteria reads "voice=10,stage_presence=10" into a criteria map.
func ParseCriteria(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, limit, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("criterion %q: want name=max", part)
		}
		v, err := strconv.ParseFloat(limit, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("criterion %q: invalid maximum", part)
		}
		out[strings.TrimSpace(name)] = v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no criteria")
	}
	return out, nil
}

// ParseWeights reads "jury,public,social" percentages. An empty string keeps
// the service defaults.
func ParseWeights(s string) (model.Weights, error) {
	if strings.TrimSpace(s) == "" {
		return model.Weights{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return model.Weights{}, fmt.Errorf("weights %q: want jury,public,social", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return model.Weights{}, fmt.Errorf("weights %q: invalid value %q", s, p)
		}
		v[i] = f
	}
	return model.Weights{Jury: v[0], Public: v[1], Social: v[2]}, nil
}

// ShowHelp prints usage information for the venue simulator.
func ShowHelp() {
	os.Stdout.WriteString(`ChanteEnScene Venue Simulator
=============================

Plays a full live show against a running service: the control room runs the
lineup, an audience votes for every act (with retries), the jury scores, the
winner is revealed and a spectator screen must celebrate it.

Usage:
  go run ./cmd/venue-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -admin-key string
        Control room key (default $ADMIN_KEY)
  -session string
        Session id (default sim-TIMESTAMP)
  -type string
        Event type, semifinal or final (default "final")
  -category string
        Candidate category (default "adult")
  -candidates int
        Performers in the lineup (default 8)
  -jurors int
        Jurors (default 3)
  -voters int
        Audience devices (default 200)
  -duplicates float
        Fraction of voters sending their vote twice (default 0.1)
  -shares float
        Fraction of counted voters who also share the act (default 0.05)
  -weights string
        Session weights as jury,public,social (default: service defaults)
  -jury-mode string
        How the service combines jury totals, sum or average (default "sum")
  -criteria string
        Jury criteria as name=max pairs (default "voice=10,interpretation=10,stage_presence=10")
  -workers int
        Concurrent voters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Report file (default: venue_report_TIMESTAMP.json)
  -log string
        Log file (default: venue_sim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/venue-sim -admin-key secret
  go run ./cmd/venue-sim -admin-key secret -candidates 12 -voters 2000 -workers 32
  go run ./cmd/venue-sim -admin-key secret -weights 50,40,10 -shares 0.2
`)
}
