package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// Scheduler wraps gocron for recurring job submissions declared in the
// configuration.
type Scheduler struct {
	scheduler gocron.Scheduler
	engine    submitter
}

// NewScheduler creates a scheduler with one gocron job per configured
// schedule.
func NewScheduler(schedules []config.ScheduleConfig, engine submitter) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	sch := &Scheduler{scheduler: s, engine: engine}

	for _, sc := range schedules {
		interval, err := sc.EveryDuration()
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("schedule %q: invalid interval %q: %w", sc.Name, sc.Every, err)
		}

		jobs := templateJobs(sc.Jobs)
		job, err := s.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(sch.submit, sc.Name, jobs),
			gocron.WithName(sc.Name),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}

		slog.Info("Schedule registered",
			logfields.ScheduleID(job.ID().String()),
			logfields.ScheduleName(sc.Name),
			logfields.Delay(interval.String()),
			slog.Int("jobs", len(jobs)))
	}

	return sch, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// submit is called by gocron on each tick.
func (s *Scheduler) submit(name string, jobs []orchestrator.Job) {
	if err := s.engine.SubmitJobs(jobs); err != nil {
		slog.Error("Failed to submit scheduled jobs",
			logfields.ScheduleName(name),
			logfields.Error(err))
		return
	}
	slog.Debug("Scheduled jobs submitted",
		logfields.ScheduleName(name),
		slog.Int("jobs", len(jobs)))
}

// templateJobs converts schedule job templates to engine jobs.
func templateJobs(templates []config.ScheduleJob) []orchestrator.Job {
	jobs := make([]orchestrator.Job, 0, len(templates))
	for _, t := range templates {
		jobs = append(jobs, orchestrator.Job{
			Key:      t.Key,
			Priority: t.Priority,
			Params:   t.Params,
		})
	}
	return jobs
}
