package orchestrator

import "time"

// Job is one unit of schedulable work, identified by a unique key.
// Dependencies are informational only; the engine never orders work by them.
type Job struct {
	Key          string            `json:"key" yaml:"key"`
	Priority     int               `json:"priority" yaml:"priority"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Params       map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	RetryCount   int               `json:"retry_count,omitempty" yaml:"-"`
	EnqueuedAt   time.Time         `json:"enqueued_at,omitempty" yaml:"-"`
}

// Mode is the orchestrator control state.
type Mode string

const (
	ModeRunning  Mode = "running"
	ModePaused   Mode = "paused"
	ModeDraining Mode = "draining"
	ModeStopped  Mode = "stopped" // terminal
)

// ReportStatus is the terminal status delivered to the state reporter.
type ReportStatus string

const (
	StatusPublished ReportStatus = "published"
	StatusFailed    ReportStatus = "failed"
)

// Snapshot is a point-in-time view of the engine for observability queries.
type Snapshot struct {
	Mode             Mode `json:"mode"`
	QueueLength      int  `json:"queue_length"`
	ActiveCount      int  `json:"active_count"`
	ConcurrencyLimit int  `json:"concurrency_limit"`
}
