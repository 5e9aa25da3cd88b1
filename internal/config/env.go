package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides layers BUILDFLOW_* environment variables over file values.
// Only operationally-tuned knobs are exposed this way; structural config
// (schedules, executor command) stays in the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BUILDFLOW_CONCURRENCY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Orchestrator.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv("BUILDFLOW_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Orchestrator.MaxRetries = n
		}
	}
	if v := os.Getenv("BUILDFLOW_REGISTRY_URL"); v != "" {
		c.Executor.RegistryURL = v
	}
	if v := os.Getenv("BUILDFLOW_WORKSPACE_ROOT"); v != "" {
		c.Executor.WorkspaceRoot = v
	}
	if v := os.Getenv("BUILDFLOW_NATS_URL"); v != "" {
		c.Reporter.NATS.URL = v
		c.Reporter.NATS.Enabled = true
	}
	if v := os.Getenv("BUILDFLOW_STATE_DIR"); v != "" {
		c.State.Dir = v
	}
	if v := os.Getenv("BUILDFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
