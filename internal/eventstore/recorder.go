package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// Event type names written to the log.
const (
	TypeJobEnqueued       = "JobEnqueued"
	TypeJobMerged         = "JobMerged"
	TypeJobStarted        = "JobStarted"
	TypeJobSucceeded      = "JobSucceeded"
	TypeJobRetryScheduled = "JobRetryScheduled"
	TypeJobFailed         = "JobFailed"
	TypeModeChanged       = "ModeChanged"
	TypeCheckpointTaken   = "CheckpointTaken"
)

// JobEnqueuedPayload is the payload for JobEnqueued events.
type JobEnqueuedPayload struct {
	Priority     int      `json:"priority"`
	Dependencies []string `json:"dependencies,omitempty"`
	RetryCount   int      `json:"retry_count,omitempty"`
}

// JobMergedPayload is the payload for JobMerged events.
type JobMergedPayload struct {
	Priority int `json:"priority"`
}

// JobStartedPayload is the payload for JobStarted events.
type JobStartedPayload struct {
	ExecutionID string `json:"execution_id"`
	Attempt     int    `json:"attempt"`
}

// JobSucceededPayload is the payload for JobSucceeded events.
type JobSucceededPayload struct {
	DurationMS int64 `json:"duration_ms"`
}

// JobRetryScheduledPayload is the payload for JobRetryScheduled events.
type JobRetryScheduledPayload struct {
	Attempt int    `json:"attempt"`
	Delay   string `json:"delay"`
}

// JobFailedPayload is the payload for JobFailed events.
type JobFailedPayload struct {
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// ModeChangedPayload is the payload for ModeChanged events.
type ModeChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CheckpointTakenPayload is the payload for CheckpointTaken events.
type CheckpointTakenPayload struct {
	Completed int `json:"completed"`
	Queued    int `json:"queued"`
}

// Mode transitions are not tied to any single job.
const modeEventKey = "_orchestrator"

// Recorder implements orchestrator.Hooks by appending lifecycle events to a
// Store. Append failures are logged and dropped so a broken log never stalls
// the scheduling loop.
type Recorder struct {
	orchestrator.NoopHooks
	store Store
}

// NewRecorder wraps a Store as engine hooks.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) JobEnqueued(job orchestrator.Job) {
	r.append(job.Key, TypeJobEnqueued, JobEnqueuedPayload{
		Priority:     job.Priority,
		Dependencies: job.Dependencies,
		RetryCount:   job.RetryCount,
	})
}

func (r *Recorder) JobMerged(key string, priority int) {
	r.append(key, TypeJobMerged, JobMergedPayload{Priority: priority})
}

func (r *Recorder) JobStarted(key, executionID string, attempt int) {
	r.append(key, TypeJobStarted, JobStartedPayload{ExecutionID: executionID, Attempt: attempt})
}

func (r *Recorder) JobSucceeded(key string, duration time.Duration) {
	r.append(key, TypeJobSucceeded, JobSucceededPayload{DurationMS: duration.Milliseconds()})
}

func (r *Recorder) JobRetryScheduled(key string, attempt int, delay time.Duration) {
	r.append(key, TypeJobRetryScheduled, JobRetryScheduledPayload{Attempt: attempt, Delay: delay.String()})
}

func (r *Recorder) JobFailedPermanently(key string, attempts int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.append(key, TypeJobFailed, JobFailedPayload{Attempts: attempts, Error: msg})
}

func (r *Recorder) ModeChanged(from, to orchestrator.Mode) {
	r.append(modeEventKey, TypeModeChanged, ModeChangedPayload{From: string(from), To: string(to)})
}

func (r *Recorder) CheckpointTaken(completed, queued int) {
	r.append(modeEventKey, TypeCheckpointTaken, CheckpointTakenPayload{Completed: completed, Queued: queued})
}

func (r *Recorder) append(jobKey, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal lifecycle event",
			logfields.JobKey(jobKey),
			slog.String("event_type", eventType),
			logfields.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.store.Append(ctx, jobKey, eventType, data, nil); err != nil {
		slog.Error("Failed to append lifecycle event",
			logfields.JobKey(jobKey),
			slog.String("event_type", eventType),
			logfields.Error(err))
	}
}
