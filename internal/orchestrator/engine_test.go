package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/retry"
)

// scriptedExecutor returns errors per key in sequence. Keys registered via
// holdKey block until the test releases them, which lets tests pin jobs in
// the active set.
type scriptedExecutor struct {
	mu     sync.Mutex
	script map[string][]error
	hold   map[string]chan error
	calls  []Job
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{script: map[string][]error{}, hold: map[string]chan error{}}
}

func (s *scriptedExecutor) holdKey(key string) chan error {
	ch := make(chan error)
	s.mu.Lock()
	s.hold[key] = ch
	s.mu.Unlock()
	return ch
}

func (s *scriptedExecutor) failTimes(key string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.script[key] = append(s.script[key], err)
	}
}

func (s *scriptedExecutor) Execute(_ context.Context, job Job) error {
	s.mu.Lock()
	s.calls = append(s.calls, job)
	ch := s.hold[job.Key]
	var err error
	if seq := s.script[job.Key]; len(seq) > 0 {
		err = seq[0]
		s.script[job.Key] = seq[1:]
	}
	s.mu.Unlock()
	if ch != nil {
		return <-ch
	}
	return err
}

func (s *scriptedExecutor) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.calls {
		if j.Key == key {
			n++
		}
	}
	return n
}

func (s *scriptedExecutor) lastCall(key string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Key == key {
			return s.calls[i], true
		}
	}
	return Job{}, false
}

type reportRecord struct {
	key    string
	status ReportStatus
	detail string
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []reportRecord
}

func (r *fakeReporter) Report(_ context.Context, key string, status ReportStatus, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reportRecord{key, status, detail})
}

func (r *fakeReporter) byKey(key string) []reportRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reportRecord
	for _, rec := range r.reports {
		if rec.key == key {
			out = append(out, rec)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		ConcurrencyLimit:    2,
		PollInterval:        10 * time.Millisecond,
		Retry:               retry.NewPolicy(config.RetryBackoffFixed, 20*time.Millisecond, time.Second, 3),
		CheckpointThreshold: 100000,
		CheckpointMaxAge:    time.Hour,
	}
}

func runEngine(t *testing.T, e *Engine) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = e.EmergencyStop()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Log("engine did not stop within cleanup timeout")
		}
	})
	return errCh
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

func TestSchedulesUpToConcurrencyLimit(t *testing.T) {
	exec := newScriptedExecutor()
	rel1 := exec.holdKey("p1")
	rel2 := exec.holdKey("p2")
	exec.holdKey("p3")
	exec.holdKey("p4")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{
		{Key: "p1", Priority: 100}, {Key: "p2", Priority: 90},
		{Key: "p3"}, {Key: "p4"},
	}))

	eventually(t, func() bool {
		s := e.Describe()
		return s.ActiveCount == 2 && s.QueueLength == 2
	}, "two jobs should be active, two queued")

	// Freed slots are refilled eagerly on completion.
	rel1 <- nil
	eventually(t, func() bool { return exec.callCount("p3") == 1 }, "p3 should start after p1 completes")
	rel2 <- nil
	eventually(t, func() bool { return exec.callCount("p4") == 1 }, "p4 should start after p2 completes")

	s := e.Describe()
	assert.LessOrEqual(t, s.ActiveCount, s.ConcurrencyLimit)
}

func TestSubmitMergeBeforeScheduling(t *testing.T) {
	exec := newScriptedExecutor()
	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.Pause())
	eventually(t, func() bool { return e.Describe().Mode == ModePaused }, "engine should pause")

	require.NoError(t, e.SubmitJobs([]Job{{Key: "p", Priority: 10}}))
	require.NoError(t, e.SubmitJobs([]Job{{Key: "p", Priority: 5}}))
	eventually(t, func() bool { return e.Describe().QueueLength == 1 }, "duplicate submit should merge")

	require.NoError(t, e.Resume())
	eventually(t, func() bool { return exec.callCount("p") == 1 }, "merged job should run once")

	job, ok := exec.lastCall("p")
	require.True(t, ok)
	assert.Equal(t, 10, job.Priority, "higher priority submission wins the merge")
}

func TestRetryThenSuccess(t *testing.T) {
	exec := newScriptedExecutor()
	exec.failTimes("p1", 2, errors.New("transient"))
	rep := &fakeReporter{}

	e, err := New(Options{Config: testConfig(), Executor: exec, Reporter: rep})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "p1", Priority: 50, Params: map[string]string{"repo": "r"}}}))

	eventually(t, func() bool { return exec.callCount("p1") == 3 }, "job should run three times")
	eventually(t, func() bool {
		recs := rep.byKey("p1")
		return len(recs) == 1 && recs[0].status == StatusPublished
	}, "success should be reported exactly once")

	// The retry re-enters with priority 0 and carried params.
	job, ok := exec.lastCall("p1")
	require.True(t, ok)
	assert.Equal(t, 0, job.Priority)
	assert.Equal(t, "r", job.Params["repo"])
	assert.Equal(t, 2, job.RetryCount)
}

func TestPermanentFailureAfterRetriesExhausted(t *testing.T) {
	exec := newScriptedExecutor()
	exec.failTimes("doomed", 10, errors.New("broken pipeline"))
	rep := &fakeReporter{}

	e, err := New(Options{Config: testConfig(), Executor: exec, Reporter: rep})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "doomed"}}))

	eventually(t, func() bool {
		recs := rep.byKey("doomed")
		return len(recs) == 1 && recs[0].status == StatusFailed
	}, "permanent failure should be reported")
	recs := rep.byKey("doomed")
	assert.Equal(t, "broken pipeline", recs[0].detail)

	// maxRetries = 3: exactly three attempts, never a fourth.
	assert.Equal(t, 3, exec.callCount("doomed"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, exec.callCount("doomed"), "no further attempts after permanent failure")
}

func TestPauseAccumulatesWithoutScheduling(t *testing.T) {
	exec := newScriptedExecutor()
	rel := exec.holdKey("active")
	rep := &fakeReporter{}

	e, err := New(Options{Config: testConfig(), Executor: exec, Reporter: rep})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "active"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "job should start")

	require.NoError(t, e.Pause())
	eventually(t, func() bool { return e.Describe().Mode == ModePaused }, "engine should pause")

	require.NoError(t, e.SubmitJobs([]Job{{Key: "queued1"}, {Key: "queued2"}}))
	eventually(t, func() bool { return e.Describe().QueueLength == 2 }, "submissions accumulate while paused")

	// Active execution still completes and is reported, but its slot is not refilled.
	rel <- nil
	eventually(t, func() bool { return len(rep.byKey("active")) == 1 }, "completion handled while paused")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, exec.callCount("queued1"))
	assert.Equal(t, 0, exec.callCount("queued2"))

	require.NoError(t, e.Resume())
	eventually(t, func() bool { return exec.callCount("queued1") == 1 && exec.callCount("queued2") == 1 },
		"scheduling resumes after resume")
}

func TestDrainWaitsForActive(t *testing.T) {
	exec := newScriptedExecutor()
	rel := exec.holdKey("slow")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	errCh := runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "slow"}, {Key: "never-started"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "slow job should start")

	// Fill the queue past the limit, then drain.
	require.NoError(t, e.Drain())
	eventually(t, func() bool { return e.Describe().Mode == ModeDraining }, "engine should drain")

	select {
	case <-errCh:
		t.Fatal("Run returned while an execution was still active")
	case <-time.After(50 * time.Millisecond):
	}

	rel <- nil
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the last active execution resolved")
	}

	assert.Equal(t, ModeStopped, e.Describe().Mode)
	assert.Equal(t, 0, exec.callCount("never-started"), "queued jobs are not started during drain")
}

func TestDrainWithNoActiveStopsImmediately(t *testing.T) {
	exec := newScriptedExecutor()
	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	errCh := runEngine(t, e)

	require.NoError(t, e.Drain())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain with no active executions should stop promptly")
	}
}

func TestEmergencyStopAbandonsActive(t *testing.T) {
	exec := newScriptedExecutor()
	rel := exec.holdKey("inflight")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	errCh := runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "inflight"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "job should start")

	require.NoError(t, e.EmergencyStop())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("emergency stop should terminate the loop without waiting")
	}
	assert.Equal(t, ModeStopped, e.Describe().Mode)

	// Signals after the terminal state are rejected.
	assert.ErrorIs(t, e.SubmitJobs([]Job{{Key: "late"}}), ErrStopped)
	assert.ErrorIs(t, e.Pause(), ErrStopped)

	// Releasing the abandoned execution must not panic or block forever.
	rel <- nil
}

func TestAdjustConcurrencyNeverPreempts(t *testing.T) {
	exec := newScriptedExecutor()
	rel1 := exec.holdKey("p1")
	exec.holdKey("p2")
	exec.holdKey("p3")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "p1"}, {Key: "p2"}, {Key: "p3"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 2 }, "two jobs should be active")

	require.NoError(t, e.AdjustConcurrency(1))
	eventually(t, func() bool { return e.Describe().ConcurrencyLimit == 1 }, "limit should drop")
	assert.Equal(t, 2, e.Describe().ActiveCount, "lowering the limit does not evict active executions")

	// A freed slot under the reduced limit is not refilled.
	rel1 <- nil
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "completion should be processed")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, exec.callCount("p3"))

	require.NoError(t, e.AdjustConcurrency(2))
	eventually(t, func() bool { return exec.callCount("p3") == 1 }, "raising the limit unlocks scheduling")
}

func TestNegativeConcurrencyClampedToZero(t *testing.T) {
	exec := newScriptedExecutor()
	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.AdjustConcurrency(-5))
	eventually(t, func() bool { return e.Describe().ConcurrencyLimit == 0 }, "negative limit clamps to zero")

	require.NoError(t, e.SubmitJobs([]Job{{Key: "held"}}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, exec.callCount("held"))
}

func TestDuplicateKeyWhileActiveRunsSequentially(t *testing.T) {
	exec := newScriptedExecutor()
	rel := exec.holdKey("dup")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "dup"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "first run should start")

	// Submission dedups against the queue only, so the key queues again
	// while an identical key is executing.
	require.NoError(t, e.SubmitJobs([]Job{{Key: "dup"}}))
	eventually(t, func() bool { return e.Describe().QueueLength == 1 }, "duplicate queues behind the active run")

	rel <- nil
	eventually(t, func() bool { return exec.callCount("dup") == 2 }, "duplicate runs after the first completes")
	rel <- nil
}

func TestSubmitAcceptedWhileDraining(t *testing.T) {
	exec := newScriptedExecutor()
	rel := exec.holdKey("busy")

	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	errCh := runEngine(t, e)

	require.NoError(t, e.SubmitJobs([]Job{{Key: "busy"}}))
	eventually(t, func() bool { return e.Describe().ActiveCount == 1 }, "job should start")

	require.NoError(t, e.Drain())
	eventually(t, func() bool { return e.Describe().Mode == ModeDraining }, "engine should drain")

	require.NoError(t, e.SubmitJobs([]Job{{Key: "late-but-accepted"}}))
	eventually(t, func() bool { return e.Describe().QueueLength == 1 }, "submissions accumulate while draining")

	rel <- nil
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not finish")
	}
	assert.Equal(t, 0, exec.callCount("late-but-accepted"))
}

func TestRunTwiceFails(t *testing.T) {
	exec := newScriptedExecutor()
	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)
	runEngine(t, e)

	eventually(t, func() bool { return e.Describe().Mode == ModeRunning }, "engine should be running")
	assert.ErrorIs(t, e.Run(context.Background()), ErrAlreadyRunning)
}

func TestContextCancelStopsLoop(t *testing.T) {
	exec := newScriptedExecutor()
	e, err := New(Options{Config: testConfig(), Executor: exec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	eventually(t, func() bool { return e.Describe().Mode == ModeRunning }, "engine should start")
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("context cancellation should stop the loop")
	}
	assert.Equal(t, ModeStopped, e.Describe().Mode)
}
