package types

import "time"

// Mode is the strategy's execution mode.
type Mode string

const (
	ModeSignals Mode = "signals"
	ModePaper Mode = "paper"
	ModeLive Mode = "live"
)

// Status is the strategy runner's lifecycle status.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusRunning Status = "RUNNING"
	StatusPaused Status = "PAUSED"
	StatusStopping Status = "STOPPING"
	StatusStopped Status = "STOPPED"
	StatusErrored Status = "ERRORED"
)

// StrategyRecord is the Supervisor's registry entry for one deployed
// strategy.
type StrategyRecord struct {
	ID string
	Name string
	SourcePath string
	Engine string
	Symbols []string
	Granularity string
	Lookback int
	Allocation Allocation
	Mode Mode
	Status Status
	CreatedAt time.Time
	StartedAt *time.Time
	LastSignalTS *time.Time
	LastSignalType SignalType
	Params map[string]string
	ErrorMessage string
	Stale bool
}

// Allocation is a capital allocation expressed either as a fraction of
// account equity in (0,1] or as an absolute currency amount, normalized
// against account equity at deploy time and held constant thereafter.
type Allocation struct {
	IsFraction bool
	Fraction float64 // used when IsFraction
	Absolute float64 // account-currency amount when !IsFraction
}
