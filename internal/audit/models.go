package audit

import "time"

// Outcome is the terminal result of a push attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeConflict         Outcome = "CONFLICT"
	OutcomeTimeout          Outcome = "TIMEOUT"
	OutcomeAuthFailed       Outcome = "AUTH_FAILED"
	OutcomeValidationFailed Outcome = "VALIDATION_FAILED"
)

// Phase distinguishes the two append-only records written per attempt:
// one before execution, one carrying the result.
type Phase string

const (
	PhaseStarted Phase = "started"
	PhaseResult  Phase = "result"
)

// AttemptRecord is one append-only row in the push attempt trail. Records
// are never mutated after write.
type AttemptRecord struct {
	ID            int64
	Branch        string
	Remote        string
	Version       string
	AttemptNumber int
	Phase         Phase
	Outcome       Outcome
	Detail        string
	CreatedAt     time.Time
}

// ReportRecord summarizes one validation report. Exactly one is written
// per push invocation that runs validation.
type ReportRecord struct {
	ID           int64
	Branch       string
	Overall      string
	FailedStages string
	CreatedAt    time.Time
}

// MetricRecord is a small per-event measurement.
type MetricRecord struct {
	ID              int64
	Event           string
	Branch          string
	Remote          string
	DurationSeconds float64
	Success         bool
	CreatedAt       time.Time
}

// Summary aggregates attempt outcomes for the status surface.
type Summary struct {
	TotalAttempts int            `json:"total_attempts"`
	ByOutcome     map[string]int `json:"by_outcome"`
}
