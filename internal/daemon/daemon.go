// Package daemon wires the orchestrator engine to its host process: the admin
// HTTP server, the spool watcher, recurring schedules and checkpoint restore.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/eventstore"
	"git.home.luguber.info/inful/buildflow/internal/executor"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/metrics"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
	"git.home.luguber.info/inful/buildflow/internal/reporter"
	"git.home.luguber.info/inful/buildflow/internal/retry"
	"git.home.luguber.info/inful/buildflow/internal/state"

	prom "github.com/prometheus/client_golang/prometheus"
)

// How long a graceful shutdown waits for draining before abandoning work.
const defaultShutdownTimeout = 5 * time.Minute

// Daemon owns the engine and every host-side service around it.
type Daemon struct {
	cfg    *config.Config
	engine *orchestrator.Engine

	registry  *prom.Registry
	events    eventstore.Store
	natsRep   *reporter.NATS
	http      *HTTPServer
	spool     *SpoolWatcher
	scheduler *Scheduler

	startTime       time.Time
	shutdownTimeout time.Duration
}

// New assembles a daemon from configuration. Nothing is started yet; call Run.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:             cfg,
		registry:        prom.NewRegistry(),
		shutdownTimeout: defaultShutdownTimeout,
	}

	exec, err := executor.FromConfig(cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	hooks := orchestrator.MultiHooks{
		metrics.NewEngineHooks(metrics.NewPrometheusRecorder(d.registry)),
	}

	if cfg.EventLog.Enabled {
		store, err := eventstore.NewSQLiteStore(cfg.EventLog.Path)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		d.events = store
		hooks = append(hooks, eventstore.NewRecorder(store))
	}

	var rep orchestrator.Reporter = reporter.Log{}
	if cfg.Reporter.NATS.Enabled {
		nr, err := reporter.NewNATS(cfg.Reporter.NATS)
		if err != nil {
			return nil, fmt.Errorf("build nats reporter: %w", err)
		}
		d.natsRep = nr
		rep = reporter.Multi{reporter.Log{}, nr}
	}

	checkpoints, err := state.NewJSONStore(cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	restored, err := checkpoints.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if restored != nil {
		slog.Info("Restoring from checkpoint",
			logfields.QueueDepth(len(restored.Queue)),
			slog.Int("pending_retries", len(restored.PendingRetries)),
			slog.Time("saved_at", restored.SavedAt))
	}

	engine, err := orchestrator.New(orchestrator.Options{
		Config: orchestrator.Config{
			ConcurrencyLimit:    cfg.Orchestrator.ConcurrencyLimit,
			PollInterval:        cfg.Orchestrator.PollIntervalDuration(),
			Retry:               retry.FromConfig(cfg.Orchestrator),
			CheckpointThreshold: cfg.Orchestrator.Checkpoint.CompletedThreshold,
			CheckpointMaxAge:    cfg.Orchestrator.Checkpoint.MaxIntervalDuration(),
		},
		Executor:    exec,
		Reporter:    rep,
		Hooks:       hooks,
		Checkpoints: checkpoints,
		Restore:     restored,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	d.engine = engine

	if cfg.Server.Enabled {
		d.http = NewHTTPServer(cfg, engine, d.registry)
	}
	if cfg.Spool.Enabled {
		sw, err := NewSpoolWatcher(cfg.Spool, engine)
		if err != nil {
			return nil, fmt.Errorf("build spool watcher: %w", err)
		}
		d.spool = sw
	}
	if len(cfg.Schedules) > 0 {
		sch, err := NewScheduler(cfg.Schedules, engine)
		if err != nil {
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
		d.scheduler = sch
	}

	return d, nil
}

// Engine exposes the orchestrator for the host process.
func (d *Daemon) Engine() *orchestrator.Engine { return d.engine }

// Run starts every service and blocks until ctx is canceled or the engine
// stops on its own. Cancellation triggers a graceful drain; if the drain does
// not finish within the shutdown timeout, in-flight work is abandoned.
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()

	// The engine gets its own context: shutdown is driven by control
	// signals so draining can finish after ctx is canceled.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.engine.Run(runCtx) }()

	if d.http != nil {
		if err := d.http.Start(ctx); err != nil {
			_ = d.engine.EmergencyStop()
			<-errCh
			return fmt.Errorf("start http server: %w", err)
		}
	}
	if d.spool != nil {
		if err := d.spool.Start(ctx); err != nil {
			_ = d.engine.EmergencyStop()
			<-errCh
			return fmt.Errorf("start spool watcher: %w", err)
		}
	}
	if d.scheduler != nil {
		d.scheduler.Start(ctx)
	}

	slog.Info("Daemon started",
		logfields.Limit(d.cfg.Orchestrator.ConcurrencyLimit),
		slog.Bool("server", d.http != nil),
		slog.Bool("spool", d.spool != nil),
		slog.Int("schedules", len(d.cfg.Schedules)))

	var runErr error
	select {
	case <-ctx.Done():
		runErr = d.stopGracefully(errCh)
	case runErr = <-errCh:
		// Engine stopped on its own (drain or emergency stop via API).
	}

	d.stopServices()
	return runErr
}

func (d *Daemon) stopGracefully(errCh <-chan error) error {
	slog.Info("Shutdown requested, draining", logfields.Delay(d.shutdownTimeout.String()))

	if err := d.engine.Drain(); err != nil {
		// Engine already stopped.
		return <-errCh
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(d.shutdownTimeout):
		slog.Warn("Drain timed out, abandoning in-flight executions")
		_ = d.engine.EmergencyStop()
		return <-errCh
	}
}

func (d *Daemon) stopServices() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.scheduler != nil {
		if err := d.scheduler.Stop(stopCtx); err != nil {
			slog.Error("Error stopping scheduler", logfields.Error(err))
		}
	}
	if d.spool != nil {
		d.spool.Stop()
	}
	if d.http != nil {
		if err := d.http.Stop(stopCtx); err != nil {
			slog.Error("Error stopping http server", logfields.Error(err))
		}
	}
	if d.natsRep != nil {
		_ = d.natsRep.Close()
	}
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			slog.Error("Error closing event log", logfields.Error(err))
		}
	}

	slog.Info("Daemon stopped")
}
