package orchestrator

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// Checkpoint is the state carried across a continue-as-new boundary. The
// pending queue and retry counters are included deliberately: dropping them
// would silently lose submitted-but-unscheduled work.
type Checkpoint struct {
	SavedAt          time.Time      `json:"saved_at"`
	ConcurrencyLimit int            `json:"concurrency_limit"`
	Queue            []Job          `json:"queue"`
	RetryCounts      map[string]int `json:"retry_counts,omitempty"`
	PendingRetries   []Job          `json:"pending_retries,omitempty"`
	CompletedTotal   int            `json:"completed_total"`
}

// CheckpointStore persists checkpoints so a restarted daemon resumes where
// the previous loop instance left off.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	// Load returns the most recent checkpoint, or (nil, nil) when none exists.
	Load(ctx context.Context) (*Checkpoint, error)
}

// maybeCheckpoint arms the checkpoint when a threshold trips and performs it
// once all active executions have resolved. While armed, the scheduler
// launches nothing new; checkpointing never interrupts in-flight work.
func (e *Engine) maybeCheckpoint(ctx context.Context) {
	if e.checkpoints == nil {
		return
	}
	if !e.checkpointPending {
		byCount := e.completedSinceCheckpoint >= e.cfg.CheckpointThreshold
		byAge := time.Since(e.lastCheckpoint) >= e.cfg.CheckpointMaxAge
		if !byCount && !byAge {
			return
		}
		e.checkpointPending = true
		slog.Info("Checkpoint armed, waiting for active executions",
			slog.Int("completed", e.completedSinceCheckpoint),
			logfields.Active(len(e.active)))
	}
	if len(e.active) > 0 {
		return
	}
	e.takeCheckpoint(ctx)
}

// takeCheckpoint externalizes state and reinitializes the loop from it.
func (e *Engine) takeCheckpoint(ctx context.Context) {
	cp := e.buildCheckpoint()
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		// Continue-as-new is still safe in-process; persistence catches up
		// on the next checkpoint.
		slog.Warn("Failed to persist checkpoint", logfields.Error(err))
	}

	// Reinitialize loop state from the snapshot with fresh allocations.
	// Outstanding retry timers stay valid in-process, so pending retries are
	// not folded into the queue here; that only happens on restart, where
	// the timers are gone (see seedFromCheckpoint).
	q := newJobQueue()
	q.Restore(cp.Queue)
	e.queue = q
	e.retryCounts = make(map[string]int, len(cp.RetryCounts))
	maps.Copy(e.retryCounts, cp.RetryCounts)
	e.limit = cp.ConcurrencyLimit
	e.completedSinceCheckpoint = 0
	e.lastCheckpoint = time.Now()
	e.checkpointPending = false

	e.hooks.CheckpointTaken(cp.CompletedTotal, len(cp.Queue))
	slog.Info("Checkpoint taken",
		slog.Int("completed_total", cp.CompletedTotal),
		logfields.QueueDepth(len(cp.Queue)),
		logfields.Limit(cp.ConcurrencyLimit))
}

func (e *Engine) buildCheckpoint() Checkpoint {
	pending := make([]Job, 0, len(e.pendingRetries))
	for _, j := range e.pendingRetries {
		pending = append(pending, j)
	}
	return Checkpoint{
		SavedAt:          time.Now(),
		ConcurrencyLimit: e.limit,
		Queue:            e.queue.Jobs(),
		RetryCounts:      maps.Clone(e.retryCounts),
		PendingRetries:   pending,
		CompletedTotal:   e.completedTotal,
	}
}

// seedFromCheckpoint rebuilds engine state from a persisted checkpoint at
// startup. Jobs caught mid-backoff at save time are re-enqueued immediately
// rather than re-deriving their remaining delay.
func (e *Engine) seedFromCheckpoint(cp *Checkpoint) {
	if cp.ConcurrencyLimit >= 0 {
		e.limit = cp.ConcurrencyLimit
	}
	restored := make([]Job, 0, len(cp.Queue)+len(cp.PendingRetries))
	restored = append(restored, cp.Queue...)
	restored = append(restored, cp.PendingRetries...)
	e.queue.Restore(restored)

	e.retryCounts = make(map[string]int, len(cp.RetryCounts))
	maps.Copy(e.retryCounts, cp.RetryCounts)
	e.completedTotal = cp.CompletedTotal
}
