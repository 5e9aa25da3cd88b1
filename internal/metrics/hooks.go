package metrics

import (
	"time"

	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// EngineHooks adapts a Recorder to the orchestrator's lifecycle callbacks.
type EngineHooks struct {
	orchestrator.NoopHooks
	rec Recorder
}

// NewEngineHooks wraps a Recorder as engine hooks.
func NewEngineHooks(rec Recorder) *EngineHooks {
	if rec == nil {
		rec = NoopRecorder{}
	}
	return &EngineHooks{rec: rec}
}

func (h *EngineHooks) JobMerged(string, int) {
	h.rec.IncJobMerged()
}

func (h *EngineHooks) JobSucceeded(_ string, d time.Duration) {
	h.rec.ObserveExecutionDuration(d)
	h.rec.IncJobOutcome(OutcomePublished)
}

func (h *EngineHooks) JobRetryScheduled(string, int, time.Duration) {
	h.rec.IncJobRetry()
}

func (h *EngineHooks) JobFailedPermanently(string, int, error) {
	h.rec.IncJobOutcome(OutcomeFailed)
}

func (h *EngineHooks) ModeChanged(_, to orchestrator.Mode) {
	h.rec.SetMode(string(to))
}

func (h *EngineHooks) CheckpointTaken(int, int) {
	h.rec.IncCheckpoint()
}

func (h *EngineHooks) SnapshotUpdated(s orchestrator.Snapshot) {
	h.rec.SetQueueDepth(s.QueueLength)
	h.rec.SetActiveExecutions(s.ActiveCount)
	h.rec.SetConcurrencyLimit(s.ConcurrencyLimit)
	h.rec.SetMode(string(s.Mode))
}
