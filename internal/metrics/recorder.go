// Package metrics exposes orchestrator observability as a Recorder interface
// with Prometheus and no-op implementations.
package metrics

import "time"

// OutcomeLabel enumerates terminal job outcomes for counters.
type OutcomeLabel string

const (
	OutcomePublished OutcomeLabel = "published"
	OutcomeFailed    OutcomeLabel = "failed"
)

// Recorder defines observability hooks for orchestrator metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil
// receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveExecutionDuration(d time.Duration)
	IncJobOutcome(outcome OutcomeLabel)
	IncJobRetry()
	IncJobMerged()
	IncCheckpoint()
	SetQueueDepth(n int)
	SetActiveExecutions(n int)
	SetConcurrencyLimit(n int)
	SetMode(mode string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveExecutionDuration(time.Duration) {}
func (NoopRecorder) IncJobOutcome(OutcomeLabel)             {}
func (NoopRecorder) IncJobRetry()                           {}
func (NoopRecorder) IncJobMerged()                          {}
func (NoopRecorder) IncCheckpoint()                         {}
func (NoopRecorder) SetQueueDepth(int)                      {}
func (NoopRecorder) SetActiveExecutions(int)                {}
func (NoopRecorder) SetConcurrencyLimit(int)                {}
func (NoopRecorder) SetMode(string)                         {}
