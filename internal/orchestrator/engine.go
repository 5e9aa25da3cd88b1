// Package orchestrator implements the continuous build orchestration engine:
// a single-goroutine control loop that drains a deduplicated job backlog
// under a live concurrency limit, retries transient failures with backoff,
// and periodically checkpoints its state.
//
// All queue/active/retry state is owned exclusively by the loop goroutine.
// External actors interact only through control signals and the completion
// events posted back by execution goroutines; events are processed strictly
// one at a time in arrival order.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/retry"
)

var (
	// ErrStopped is returned by control signals after the engine reached its
	// terminal state.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Executor performs one job and returns exactly once. The engine offers no
// cancellation in any path; the context carries values and deadlines set by
// the host, not engine-driven cancellation.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// Reporter receives terminal per-job status. Best-effort: implementations
// must not block the loop and the engine never retries a report.
type Reporter interface {
	Report(ctx context.Context, key string, status ReportStatus, detail string)
}

// Config carries the tunables of the engine loop.
type Config struct {
	ConcurrencyLimit    int
	PollInterval        time.Duration
	Retry               retry.Policy
	CheckpointThreshold int
	CheckpointMaxAge    time.Duration
}

// Options wires the engine's collaborators.
type Options struct {
	Config      Config
	Executor    Executor
	Reporter    Reporter        // optional; nil discards reports
	Hooks       Hooks           // optional
	Checkpoints CheckpointStore // optional; nil disables checkpointing
	Restore     *Checkpoint     // optional; seed state from a prior checkpoint
}

type signalKind int

const (
	sigSubmit signalKind = iota
	sigRetry
	sigPause
	sigResume
	sigDrain
	sigStop
	sigSetLimit
)

type signal struct {
	kind  signalKind
	jobs  []Job
	limit int
}

type completion struct {
	key string
	err error
}

type execution struct {
	job       Job
	id        string
	startedAt time.Time
}

// Engine is the orchestrator core. Construct with New, drive with Run.
type Engine struct {
	cfg      Config
	executor Executor
	reporter Reporter
	hooks    Hooks

	checkpoints CheckpointStore

	// Loop-owned state. Only the Run goroutine touches these.
	queue          *jobQueue
	active         map[string]*execution
	retryCounts    map[string]int
	pendingRetries map[string]Job
	retryTimers    map[string]*time.Timer
	mode           Mode
	limit          int

	completedSinceCheckpoint int
	completedTotal           int
	lastCheckpoint           time.Time
	checkpointPending        bool

	signals     chan signal
	completions chan completion
	done        chan struct{}
	started     atomic.Bool
	snapshot    atomic.Pointer[Snapshot]
}

// New constructs an engine. The executor is required; everything else has a
// working default.
func New(opts Options) (*Engine, error) {
	if opts.Executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	cfg := opts.Config
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConcurrencyLimit < 0 {
		cfg.ConcurrencyLimit = 0
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.CheckpointThreshold <= 0 {
		cfg.CheckpointThreshold = 100
	}
	if cfg.CheckpointMaxAge <= 0 {
		cfg.CheckpointMaxAge = 24 * time.Hour
	}

	e := &Engine{
		cfg:            cfg,
		executor:       opts.Executor,
		reporter:       opts.Reporter,
		hooks:          opts.Hooks,
		checkpoints:    opts.Checkpoints,
		queue:          newJobQueue(),
		active:         make(map[string]*execution),
		retryCounts:    make(map[string]int),
		pendingRetries: make(map[string]Job),
		retryTimers:    make(map[string]*time.Timer),
		mode:           ModeRunning,
		limit:          cfg.ConcurrencyLimit,
		signals:        make(chan signal, 16),
		completions:    make(chan completion, 16),
		done:           make(chan struct{}),
	}
	if e.hooks == nil {
		e.hooks = NoopHooks{}
	}
	if opts.Restore != nil {
		e.seedFromCheckpoint(opts.Restore)
		slog.Info("Restored orchestrator state from checkpoint",
			logfields.QueueDepth(e.queue.Len()),
			logfields.Limit(e.limit),
			slog.Time("saved_at", opts.Restore.SavedAt))
	}
	e.publishSnapshot()
	return e, nil
}

// Run executes the control loop until the engine reaches STOPPED. It returns
// nil after drain or emergency-stop, and ctx.Err() if the host context is
// cancelled (in-flight executions are abandoned, not cancelled, in both
// cases). Run must be called at most once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.shutdown()

	// Executions deliberately outlive loop exit: emergency-stop abandons
	// in-flight work without cancelling it.
	execCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	e.lastCheckpoint = time.Now()

	slog.Info("Orchestrator loop started",
		logfields.Limit(e.limit),
		logfields.QueueDepth(e.queue.Len()))

	for {
		if e.mode == ModeStopped {
			e.publishSnapshot()
			return nil
		}
		if e.mode == ModeDraining && len(e.active) == 0 {
			e.setMode(ModeStopped)
			e.publishSnapshot()
			slog.Info("Drain complete, orchestrator stopped")
			return nil
		}

		e.maybeCheckpoint(ctx)
		e.schedule(execCtx)
		e.publishSnapshot()

		select {
		case sig := <-e.signals:
			e.handleSignal(sig)
		case c := <-e.completions:
			e.handleCompletion(ctx, c)
		case <-ticker.C:
			// idle pass: re-check externally mutated conditions
		case <-ctx.Done():
			e.setMode(ModeStopped)
			e.publishSnapshot()
			slog.Warn("Orchestrator context cancelled, abandoning active executions",
				logfields.Active(len(e.active)))
			return ctx.Err()
		}
	}
}

// SubmitJobs merges jobs into the backlog. Accepted in every mode except
// STOPPED, including PAUSED and DRAINING.
func (e *Engine) SubmitJobs(jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return e.send(signal{kind: sigSubmit, jobs: jobs})
}

// Pause suspends scheduling; active executions run to completion.
func (e *Engine) Pause() error { return e.send(signal{kind: sigPause}) }

// Resume reverses Pause.
func (e *Engine) Resume() error { return e.send(signal{kind: sigResume}) }

// Drain stops scheduling, waits for active executions, then stops the loop.
func (e *Engine) Drain() error { return e.send(signal{kind: sigDrain}) }

// EmergencyStop terminates the loop within the current iteration, abandoning
// in-flight executions.
func (e *Engine) EmergencyStop() error { return e.send(signal{kind: sigStop}) }

// AdjustConcurrency changes the limit, effective on the next pass. Negative
// values are clamped to zero.
func (e *Engine) AdjustConcurrency(limit int) error {
	return e.send(signal{kind: sigSetLimit, limit: limit})
}

// Describe returns the current engine snapshot without touching loop state.
func (e *Engine) Describe() Snapshot {
	return *e.snapshot.Load()
}

func (e *Engine) send(sig signal) error {
	select {
	case e.signals <- sig:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) handleSignal(sig signal) {
	switch sig.kind {
	case sigSubmit, sigRetry:
		for _, j := range sig.jobs {
			e.enqueue(j, sig.kind == sigRetry)
		}
	case sigPause:
		if e.mode == ModeRunning {
			e.setMode(ModePaused)
		}
	case sigResume:
		if e.mode == ModePaused {
			e.setMode(ModeRunning)
		}
	case sigDrain:
		if e.mode == ModeRunning || e.mode == ModePaused {
			e.setMode(ModeDraining)
		}
	case sigStop:
		e.setMode(ModeStopped)
	case sigSetLimit:
		limit := sig.limit
		if limit < 0 {
			slog.Warn("Negative concurrency limit clamped to 0", logfields.Limit(sig.limit))
			limit = 0
		}
		e.limit = limit
		slog.Info("Concurrency limit adjusted", logfields.Limit(limit), logfields.Active(len(e.active)))
	}
}

func (e *Engine) enqueue(j Job, isRetry bool) {
	if j.Key == "" {
		slog.Warn("Dropping job with empty key")
		return
	}
	if isRetry {
		delete(e.pendingRetries, j.Key)
		if t, ok := e.retryTimers[j.Key]; ok {
			t.Stop()
			delete(e.retryTimers, j.Key)
		}
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	switch e.queue.Merge(j) {
	case mergeAppended:
		e.hooks.JobEnqueued(j)
		slog.Debug("Job enqueued", logfields.JobKey(j.Key), logfields.JobPriority(j.Priority))
	case mergeReplaced:
		e.hooks.JobMerged(j.Key, j.Priority)
		slog.Debug("Job merged with higher priority", logfields.JobKey(j.Key), logfields.JobPriority(j.Priority))
	case mergeKept:
		slog.Debug("Job submission deduplicated", logfields.JobKey(j.Key))
	}
}

// schedule fills free slots from the queue head. No-op unless RUNNING and no
// checkpoint is armed.
func (e *Engine) schedule(execCtx context.Context) {
	if e.mode != ModeRunning || e.checkpointPending {
		return
	}
	slots := e.limit - len(e.active)
	if slots <= 0 || e.queue.Len() == 0 {
		return
	}
	for _, job := range e.queue.PopFront(slots) {
		e.launch(execCtx, job)
	}
}

func (e *Engine) launch(execCtx context.Context, job Job) {
	ex := &execution{job: job, id: uuid.NewString(), startedAt: time.Now()}
	e.active[job.Key] = ex
	attempt := e.retryCounts[job.Key] + 1
	e.hooks.JobStarted(job.Key, ex.id, attempt)
	slog.Info("Job started",
		logfields.JobKey(job.Key),
		logfields.ExecutionID(ex.id),
		logfields.Attempt(attempt))

	go func() {
		err := e.executor.Execute(execCtx, job)
		select {
		case e.completions <- completion{key: job.Key, err: err}:
		case <-e.done:
			// loop gone; the execution result is unobserved by design
		}
	}()
}

func (e *Engine) handleCompletion(ctx context.Context, c completion) {
	ex, ok := e.active[c.key]
	if !ok {
		slog.Warn("Completion for unknown job ignored", logfields.JobKey(c.key))
		return
	}
	delete(e.active, c.key)
	e.completedSinceCheckpoint++
	e.completedTotal++
	duration := time.Since(ex.startedAt)

	if c.err == nil {
		delete(e.retryCounts, c.key)
		e.report(ctx, c.key, StatusPublished, "")
		e.hooks.JobSucceeded(c.key, duration)
		slog.Info("Job succeeded",
			logfields.JobKey(c.key),
			logfields.DurationMS(float64(duration.Milliseconds())))
		return
	}

	e.retryCounts[c.key]++
	failures := e.retryCounts[c.key]
	if e.cfg.Retry.Exhausted(failures) {
		delete(e.retryCounts, c.key)
		e.report(ctx, c.key, StatusFailed, c.err.Error())
		e.hooks.JobFailedPermanently(c.key, failures, c.err)
		slog.Error("Job failed permanently",
			logfields.JobKey(c.key),
			logfields.Attempt(failures),
			logfields.Error(c.err))
		return
	}

	delay := e.cfg.Retry.Delay(failures)
	// Original priority and dependencies are not preserved across a retry;
	// params are, so the executor can still run the job.
	retryJob := Job{Key: c.key, Priority: 0, Params: ex.job.Params, RetryCount: failures}
	e.pendingRetries[c.key] = retryJob
	e.retryTimers[c.key] = time.AfterFunc(delay, func() {
		select {
		case e.signals <- signal{kind: sigRetry, jobs: []Job{retryJob}}:
		case <-e.done:
		}
	})
	e.hooks.JobRetryScheduled(c.key, failures, delay)
	slog.Warn("Job failed, retry scheduled",
		logfields.JobKey(c.key),
		logfields.Attempt(failures),
		logfields.Delay(delay.String()),
		logfields.Error(c.err))
}

func (e *Engine) report(ctx context.Context, key string, status ReportStatus, detail string) {
	if e.reporter == nil {
		return
	}
	e.reporter.Report(ctx, key, status, detail)
}

func (e *Engine) setMode(m Mode) {
	if e.mode == m {
		return
	}
	old := e.mode
	e.mode = m
	e.hooks.ModeChanged(old, m)
	slog.Info("Orchestrator mode changed",
		slog.String("from", string(old)),
		logfields.Mode(string(m)))
}

func (e *Engine) publishSnapshot() {
	s := Snapshot{
		Mode:             e.mode,
		QueueLength:      e.queue.Len(),
		ActiveCount:      len(e.active),
		ConcurrencyLimit: e.limit,
	}
	prev := e.snapshot.Swap(&s)
	if prev == nil || *prev != s {
		e.hooks.SnapshotUpdated(s)
	}
}

// shutdown releases loop resources after Run returns. Outstanding retry
// timers are stopped; their jobs are already captured in pendingRetries for
// the next checkpoint, if any was taken.
func (e *Engine) shutdown() {
	close(e.done)
	for key, t := range e.retryTimers {
		t.Stop()
		delete(e.retryTimers, key)
	}
}
