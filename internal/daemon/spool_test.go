package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

type collectingSubmitter struct {
	mu   sync.Mutex
	jobs []orchestrator.Job
}

func (c *collectingSubmitter) SubmitJobs(jobs []orchestrator.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, jobs...)
	return nil
}

func (c *collectingSubmitter) snapshot() []orchestrator.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]orchestrator.Job(nil), c.jobs...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestParseSpoolFileBatch(t *testing.T) {
	data := []byte(`jobs:
  - key: site-a
    priority: 2
    params:
      ref: main
  - key: site-b
`)
	jobs, err := parseSpoolFile(data)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "site-a", jobs[0].Key)
	assert.Equal(t, 2, jobs[0].Priority)
	assert.Equal(t, "main", jobs[0].Params["ref"])
}

func TestParseSpoolFileSingleJob(t *testing.T) {
	jobs, err := parseSpoolFile([]byte("key: site-a\npriority: 1\n"))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "site-a", jobs[0].Key)
}

func TestParseSpoolFileRejectsMissingKey(t *testing.T) {
	_, err := parseSpoolFile([]byte("priority: 1\n"))
	require.Error(t, err)
}

func TestSpoolWatcherSubmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.yaml"), []byte("key: site-a\n"), 0644))

	sub := &collectingSubmitter{}
	sw, err := NewSpoolWatcher(config.SpoolConfig{Enabled: true, Dir: dir, Debounce: "10ms"}, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Start(t.Context()))

	waitFor(t, 2*time.Second, func() bool { return len(sub.snapshot()) == 1 })
	assert.Equal(t, "site-a", sub.snapshot()[0].Key)

	// File is removed after acceptance.
	waitFor(t, 2*time.Second, func() bool {
		_, statErr := os.Stat(filepath.Join(dir, "job.yaml"))
		return os.IsNotExist(statErr)
	})
}

func TestSpoolWatcherPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	sub := &collectingSubmitter{}
	sw, err := NewSpoolWatcher(config.SpoolConfig{Enabled: true, Dir: dir, Debounce: "10ms"}, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Start(t.Context()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.yml"), []byte("jobs:\n  - key: site-b\n"), 0644))

	waitFor(t, 2*time.Second, func() bool { return len(sub.snapshot()) == 1 })
	assert.Equal(t, "site-b", sub.snapshot()[0].Key)
}

func TestSpoolWatcherIgnoresNonYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a job"), 0644))

	sub := &collectingSubmitter{}
	sw, err := NewSpoolWatcher(config.SpoolConfig{Enabled: true, Dir: dir, Debounce: "10ms"}, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Start(t.Context()))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sub.snapshot())

	// Non-job files stay put.
	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err)
}
