package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// submitter is the slice of the engine the spool watcher needs.
type submitter interface {
	SubmitJobs(jobs []orchestrator.Job) error
}

// SpoolWatcher submits jobs dropped as YAML files into a spool directory.
// Files are removed once their jobs are accepted.
type SpoolWatcher struct {
	dir      string
	engine   submitter
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	sweep    chan struct{}
}

// spoolFile is the on-disk format: either a list of jobs or a single job.
type spoolFile struct {
	Jobs []orchestrator.Job `yaml:"jobs"`
}

// NewSpoolWatcher creates a watcher for the configured spool directory,
// creating the directory if needed.
func NewSpoolWatcher(cfg config.SpoolConfig, engine submitter) (*SpoolWatcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", cfg.Dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve spool path: %w", err)
	}

	return &SpoolWatcher{
		dir:      absDir,
		engine:   engine,
		watcher:  watcher,
		debounce: cfg.DebounceDuration(),
		stopChan: make(chan struct{}),
		sweep:    make(chan struct{}, 1),
	}, nil
}

// Start begins monitoring the spool directory. Files already present are
// processed immediately.
func (sw *SpoolWatcher) Start(ctx context.Context) error {
	if err := sw.watcher.Add(sw.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory %s: %w", sw.dir, err)
	}

	slog.Info("Starting spool watcher", logfields.Path(sw.dir))

	go sw.watchLoop(ctx)
	go sw.sweepLoop(ctx)

	// Pick up anything dropped before the daemon started.
	sw.triggerSweep()
	return nil
}

// Stop stops the watcher.
func (sw *SpoolWatcher) Stop() {
	sw.stopOnce.Do(func() {
		slog.Info("Stopping spool watcher")
		close(sw.stopChan)
		if err := sw.watcher.Close(); err != nil {
			slog.Error("Error closing spool watcher", logfields.Error(err))
		}
	})
}

// watchLoop turns file system events into sweep triggers.
func (sw *SpoolWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !isSpoolFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				slog.Debug("Spool file change detected", logfields.Path(event.Name))
				sw.triggerSweep()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Spool watcher error", logfields.Error(err))
		}
	}
}

// sweepLoop handles debounced directory sweeps.
func (sw *SpoolWatcher) sweepLoop(ctx context.Context) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.sweep:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounce, func() {
				sw.processDir(ctx)
			})
		}
	}
}

func (sw *SpoolWatcher) triggerSweep() {
	select {
	case sw.sweep <- struct{}{}:
	default:
		// Sweep already pending.
	}
}

// processDir submits every parseable spool file and removes it. A sweep of
// the whole directory is cheap and makes missed events harmless.
func (sw *SpoolWatcher) processDir(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	entries, err := os.ReadDir(sw.dir)
	if err != nil {
		slog.Error("Failed to read spool directory", logfields.Path(sw.dir), logfields.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		path := filepath.Join(sw.dir, entry.Name())
		if err := sw.processFile(path); err != nil {
			slog.Warn("Skipping spool file", logfields.Path(path), logfields.Error(err))
		}
	}
}

func (sw *SpoolWatcher) processFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	jobs, err := parseSpoolFile(data)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no jobs in file")
	}

	if err := sw.engine.SubmitJobs(jobs); err != nil {
		// Leave the file in place; it will be retried on the next sweep.
		return fmt.Errorf("submit: %w", err)
	}

	if err := os.Remove(path); err != nil {
		slog.Error("Failed to remove processed spool file", logfields.Path(path), logfields.Error(err))
	}

	slog.Info("Spool file submitted", logfields.Path(path), slog.Int("jobs", len(jobs)))
	return nil
}

// parseSpoolFile accepts either a jobs list or a single job document.
func parseSpoolFile(data []byte) ([]orchestrator.Job, error) {
	var file spoolFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Jobs) > 0 {
		return validJobs(file.Jobs)
	}

	var single orchestrator.Job
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	if single.Key == "" {
		return nil, fmt.Errorf("job key is required")
	}
	return []orchestrator.Job{single}, nil
}

func validJobs(jobs []orchestrator.Job) ([]orchestrator.Job, error) {
	for _, j := range jobs {
		if j.Key == "" {
			return nil, fmt.Errorf("job key is required")
		}
	}
	return jobs, nil
}

func isSpoolFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
