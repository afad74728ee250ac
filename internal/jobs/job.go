// Package jobs is a durable, constraint-aware scheduler for named units of work.
//
// Jobs are persisted in BadgerDB keyed by name, so scheduled work survives
// process death. Each name holds at most one job. Enqueue policies decide what
// happens when a name is already taken: Replace supersedes work that has not
// started yet, Keep leaves live work alone. A running job is never preempted;
// its completion is simply not recorded if the job was replaced or cancelled
// while it ran.
package jobs

import (
	"errors"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StateEnqueued       State = "ENQUEUED"
	StateRunning        State = "RUNNING"
	StateSucceeded      State = "SUCCEEDED"
	StateRetryScheduled State = "RETRY_SCHEDULED"
	StateFailedTerminal State = "FAILED_TERMINAL"
	StateCancelled      State = "CANCELLED"
)

// Live reports whether a job in this state is still going to run.
func (s State) Live() bool {
	return s == StateEnqueued || s == StateRunning || s == StateRetryScheduled
}

// Kind distinguishes one-shot from periodic work.
type Kind string

const (
	KindOneShot  Kind = "one_shot"
	KindPeriodic Kind = "periodic"
)

// Policy controls how an enqueue treats an existing job under the same name.
type Policy int

const (
	// Replace supersedes existing work that has not started.
	Replace Policy = iota
	// Keep leaves existing live work untouched.
	Keep
)

func (p Policy) String() string {
	if p == Keep {
		return "keep"
	}
	return "replace"
}

// DefaultMaxAttempts bounds attempts per run when a request leaves it zero.
const DefaultMaxAttempts = 3

var (
	// ErrUnknownJob is returned when a name has no job.
	ErrUnknownJob = errors.New("unknown job")
)

// Constraints gate when a job may start.
type Constraints struct {
	RequiresNetwork       bool `json:"requiresNetwork"`
	RequiresBatteryNotLow bool `json:"requiresBatteryNotLow"`
}

// OneShotRequest describes work that runs once per enqueue.
type OneShotRequest struct {
	// Delay postpones the first attempt; rapid re-enqueues under Replace collapse into one run.
	Delay       time.Duration
	Constraints Constraints
	MaxAttempts int
}

// PeriodicRequest describes recurring work. Each run becomes eligible in the
// trailing Flex window of its Interval.
type PeriodicRequest struct {
	Interval    time.Duration
	Flex        time.Duration
	Constraints Constraints
	MaxAttempts int
}

// Job is the persisted record of one named unit of work.
type Job struct {
	Name        string        `json:"name"`
	Kind        Kind          `json:"kind"`
	RunID       string        `json:"runId"`
	State       State         `json:"state"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	Constraints Constraints   `json:"constraints"`
	Interval    time.Duration `json:"interval,omitempty"`
	Flex        time.Duration `json:"flex,omitempty"`

	NextRunAt  time.Time `json:"nextRunAt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	LastRunAt  time.Time `json:"lastRunAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`

	// LastOutcome is SUCCEEDED or FAILED_TERMINAL for the most recent finished run.
	LastOutcome State  `json:"lastOutcome,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	Runs        int    `json:"runs"`
}

// Due reports whether the job is waiting and its start time has passed.
func (j Job) Due(now time.Time) bool {
	return (j.State == StateEnqueued || j.State == StateRetryScheduled) && !j.NextRunAt.After(now)
}

// nextWindow returns the earliest start of the periodic window following base.
func (j Job) nextWindow(base time.Time) time.Time {
	wait := j.Interval - j.Flex
	if wait < 0 {
		wait = 0
	}
	return base.Add(wait)
}
