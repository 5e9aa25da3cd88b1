package orchestrator

import "time"

// Hooks receives lifecycle callbacks from the engine loop. All methods are
// invoked synchronously from the loop goroutine and must return quickly;
// anything slow belongs behind the implementation's own buffering.
type Hooks interface {
	JobEnqueued(job Job)
	JobMerged(key string, priority int)
	JobStarted(key, executionID string, attempt int)
	JobSucceeded(key string, duration time.Duration)
	JobRetryScheduled(key string, attempt int, delay time.Duration)
	JobFailedPermanently(key string, attempts int, err error)
	ModeChanged(from, to Mode)
	CheckpointTaken(completed, queued int)
	SnapshotUpdated(s Snapshot)
}

// NoopHooks is the default Hooks implementation.
type NoopHooks struct{}

func (NoopHooks) JobEnqueued(Job)                             {}
func (NoopHooks) JobMerged(string, int)                       {}
func (NoopHooks) JobStarted(string, string, int)              {}
func (NoopHooks) JobSucceeded(string, time.Duration)          {}
func (NoopHooks) JobRetryScheduled(string, int, time.Duration) {}
func (NoopHooks) JobFailedPermanently(string, int, error)     {}
func (NoopHooks) ModeChanged(Mode, Mode)                      {}
func (NoopHooks) CheckpointTaken(int, int)                    {}
func (NoopHooks) SnapshotUpdated(Snapshot)                    {}

// MultiHooks fans callbacks out to several sinks.
type MultiHooks []Hooks

func (m MultiHooks) JobEnqueued(j Job) {
	for _, h := range m {
		h.JobEnqueued(j)
	}
}

func (m MultiHooks) JobMerged(key string, priority int) {
	for _, h := range m {
		h.JobMerged(key, priority)
	}
}

func (m MultiHooks) JobStarted(key, executionID string, attempt int) {
	for _, h := range m {
		h.JobStarted(key, executionID, attempt)
	}
}

func (m MultiHooks) JobSucceeded(key string, d time.Duration) {
	for _, h := range m {
		h.JobSucceeded(key, d)
	}
}

func (m MultiHooks) JobRetryScheduled(key string, attempt int, delay time.Duration) {
	for _, h := range m {
		h.JobRetryScheduled(key, attempt, delay)
	}
}

func (m MultiHooks) JobFailedPermanently(key string, attempts int, err error) {
	for _, h := range m {
		h.JobFailedPermanently(key, attempts, err)
	}
}

func (m MultiHooks) ModeChanged(from, to Mode) {
	for _, h := range m {
		h.ModeChanged(from, to)
	}
}

func (m MultiHooks) CheckpointTaken(completed, queued int) {
	for _, h := range m {
		h.CheckpointTaken(completed, queued)
	}
}

func (m MultiHooks) SnapshotUpdated(s Snapshot) {
	for _, h := range m {
		h.SnapshotUpdated(s)
	}
}
