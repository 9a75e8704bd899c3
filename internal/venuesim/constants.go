package venuesim

import "time"

// Defaults used by cmd/venue-sim.
const (
	DefaultCandidates      = 8
	DefaultJurors          = 3
	DefaultVoters          = 200
	DefaultDuplicateRate   = 0.1
	DefaultShareRate       = 0.05
	DefaultTimeout         = 10 * time.Second
	DefaultCelebrationWait = 15 * time.Second
	DefaultPollInterval    = time.Second
)

const (
	percentageMultiplier = 100
	reportFilePermission = 0o600
	directoryPermission  = 0o750
)
