package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// Command executes each job by running a configured command line with the
// job's key and parameters exposed through placeholders and environment
// variables. A non-zero exit is a failed execution.
type Command struct {
	argv          []string
	workspaceRoot string
	registryURL   string
}

// NewCommand builds a Command executor from configuration.
func NewCommand(cfg config.ExecutorConfig) (*Command, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("command executor requires a non-empty command")
	}
	return &Command{
		argv:          cfg.Command,
		workspaceRoot: cfg.WorkspaceRoot,
		registryURL:   cfg.RegistryURL,
	}, nil
}

// Execute runs the command for one job and returns exactly once.
func (c *Command) Execute(ctx context.Context, job orchestrator.Job) error {
	argv := expandArgv(c.argv, job)
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if c.workspaceRoot != "" {
		cmd.Dir = c.workspaceRoot
	}
	cmd.Env = jobEnv(job, c.registryURL, c.workspaceRoot)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("job %s: command failed: %w: %s", job.Key, err, tail(out, 512))
	}

	slog.Debug("Command execution finished",
		logfields.JobKey(job.Key),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
