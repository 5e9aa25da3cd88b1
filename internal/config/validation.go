package config

import (
	"fmt"
	"time"
)

// Validate checks invariants across the whole configuration.
func (c *Config) Validate() error {
	if c.Orchestrator.ConcurrencyLimit < 0 {
		return fmt.Errorf("orchestrator.concurrency_limit cannot be negative")
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries cannot be negative")
	}
	switch c.Orchestrator.RetryBackoff {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return fmt.Errorf("invalid orchestrator.retry_backoff: %s (allowed: fixed|linear|exponential)", c.Orchestrator.RetryBackoff)
	}

	if err := validateDuration("orchestrator.poll_interval", c.Orchestrator.PollInterval); err != nil {
		return err
	}
	initial, err := time.ParseDuration(c.Orchestrator.RetryInitial)
	if err != nil {
		return fmt.Errorf("invalid orchestrator.retry_initial_delay: %s: %w", c.Orchestrator.RetryInitial, err)
	}
	maxDelay, err := time.ParseDuration(c.Orchestrator.RetryMax)
	if err != nil {
		return fmt.Errorf("invalid orchestrator.retry_max_delay: %s: %w", c.Orchestrator.RetryMax, err)
	}
	if maxDelay < initial {
		return fmt.Errorf("orchestrator.retry_max_delay (%s) must be >= retry_initial_delay (%s)", c.Orchestrator.RetryMax, c.Orchestrator.RetryInitial)
	}

	if c.Orchestrator.Checkpoint.CompletedThreshold < 1 {
		return fmt.Errorf("orchestrator.checkpoint.completed_threshold must be >= 1")
	}
	if err := validateDuration("orchestrator.checkpoint.max_interval", c.Orchestrator.Checkpoint.MaxInterval); err != nil {
		return err
	}

	switch c.Executor.Kind {
	case "command", "git":
	default:
		return fmt.Errorf("invalid executor.kind: %s (allowed: command|git)", c.Executor.Kind)
	}
	if c.Executor.Kind == "command" && len(c.Executor.Command) == 0 {
		return fmt.Errorf("executor.command is required when executor.kind is command")
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Spool.Enabled {
		if err := validateDuration("spool.debounce", c.Spool.Debounce); err != nil {
			return err
		}
	}
	if c.Reporter.NATS.Enabled && c.Reporter.NATS.URL == "" {
		return fmt.Errorf("reporter.nats.url is required when reporter.nats.enabled")
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedules[%d].name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate schedule name: %s", s.Name)
		}
		seen[s.Name] = struct{}{}
		every, err := time.ParseDuration(s.Every)
		if err != nil {
			return fmt.Errorf("schedules[%d].every: %s: %w", i, s.Every, err)
		}
		if every < time.Second {
			return fmt.Errorf("schedules[%d].every must be >= 1s", i)
		}
		if len(s.Jobs) == 0 {
			return fmt.Errorf("schedules[%d].jobs must not be empty", i)
		}
		for j, job := range s.Jobs {
			if job.Key == "" {
				return fmt.Errorf("schedules[%d].jobs[%d].key is required", i, j)
			}
		}
	}
	return nil
}

func validateDuration(field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %s: %w", field, raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return nil
}
