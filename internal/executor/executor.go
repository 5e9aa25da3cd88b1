// Package executor provides the concrete job executors the orchestrator can
// be wired with: a plain command runner and a git-checkout-then-build runner.
package executor

import (
	"fmt"
	"os"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// FromConfig constructs the executor selected by configuration.
func FromConfig(cfg config.ExecutorConfig) (orchestrator.Executor, error) {
	switch cfg.Kind {
	case "command":
		return NewCommand(cfg)
	case "git":
		return NewGitBuild(cfg)
	default:
		return nil, fmt.Errorf("unknown executor kind: %s", cfg.Kind)
	}
}

// jobEnv builds the environment a job execution runs with. Job parameters are
// passed as BUILDFLOW_PARAM_* variables; registry URL and workspace root come
// from explicit configuration, never from ambient process state read at
// execution time.
func jobEnv(job orchestrator.Job, registryURL, workspace string) []string {
	env := append(os.Environ(),
		"BUILDFLOW_JOB_KEY="+job.Key,
		fmt.Sprintf("BUILDFLOW_JOB_ATTEMPT=%d", job.RetryCount+1),
	)
	if registryURL != "" {
		env = append(env, "BUILDFLOW_REGISTRY_URL="+registryURL)
	}
	if workspace != "" {
		env = append(env, "BUILDFLOW_WORKSPACE="+workspace)
	}
	for k, v := range job.Params {
		env = append(env, "BUILDFLOW_PARAM_"+paramEnvName(k)+"="+v)
	}
	return env
}

func paramEnvName(key string) string {
	upper := strings.ToUpper(key)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

// expandArgv substitutes {key} and {param:<name>} placeholders in the
// configured command line.
func expandArgv(argv []string, job orchestrator.Job) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		a = strings.ReplaceAll(a, "{key}", job.Key)
		for k, v := range job.Params {
			a = strings.ReplaceAll(a, "{param:"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// tail returns the last chunk of command output for error context.
func tail(out []byte, limit int) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
