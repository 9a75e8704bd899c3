package venuesim

import (
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/ranking"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// Config holds configuration for a simulated show.
type Config struct {
	BaseURL         string             // Base URL of the service
	AdminKey        string             // Control room key
	SessionID       string             // Session the show runs in
	EventType       model.EventType    // semifinal or final
	Category        string             // Category given to every candidate
	Candidates      int                // Performers in the lineup
	Jurors          int                // Jurors scoring every act
	Voters          int                // Audience devices voting per act
	DuplicateRate   float64            // Fraction of voters that send their vote twice
	ShareRate       float64            // Fraction of counted voters that also share the act
	Weights         model.Weights      // Session weights set before the show
	JuryMode        ranking.JuryMode   // How the service combines jury totals
	Criteria        map[string]float64 // Jury criteria and their maximum
	Workers         int                // Concurrent voters
	Timeout         time.Duration      // HTTP request timeout
	PollInterval    time.Duration      // Spectator fallback poll period
	CelebrationWait time.Duration      // How long the spectator may take to see the reveal
	OutputFile      string             // Output file for the show report
	Verbose         bool               // Enable verbose logging
}

// Act is one performer's slot as the simulator ran it.
type Act struct {
	CandidateID string `json:"candidate_id"`
	StageName   string `json:"stage_name"`
	Votes       int    `json:"votes"`
	Duplicates  int    `json:"duplicates"`
	Shares      int    `json:"shares"`
	Failed      int    `json:"failed"`
}

// Stats holds show statistics.
type Stats struct {
	CandidatesRegistered int
	JurorsRegistered     int
	Acts                 int
	VotesSubmitted       int
	VotesCounted         int
	VotesDuplicate       int
	VotesFailed          int
	SharesRecorded       int
	ScoresSubmitted      int
	Celebrated           bool
	Winner               string
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}

// Report is written to the output file at the end of a show.
type Report struct {
	SessionID string                `json:"session_id"`
	EventID   string                `json:"event_id"`
	Acts      []Act                 `json:"acts"`
	Tally     types.TallyResponse   `json:"tally"`
	Ranking   types.RankingResponse `json:"ranking"`
	Winner    string                `json:"winner"`
}
