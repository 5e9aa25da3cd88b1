package config

import "time"

const (
	defaultConcurrencyLimit        = 2
	defaultPollIntervalRaw         = "1s"
	defaultPollInterval            = time.Second
	defaultMaxRetries              = 3
	defaultRetryInitialRaw         = "1m"
	defaultRetryInitial            = time.Minute
	defaultRetryMaxRaw             = "1h"
	defaultRetryMax                = time.Hour
	defaultCheckpointThreshold     = 100
	defaultCheckpointMaxIntervalRw = "24h"
	defaultCheckpointMaxInterval   = 24 * time.Hour
	defaultServerPort              = 8085
	defaultSpoolDebounceRaw        = "500ms"
	defaultSpoolDebounce           = 500 * time.Millisecond
	defaultStateDir                = "./buildflow-data"
	defaultEventLogPath            = "./buildflow-data/events.db"
	defaultSpoolDir                = "./buildflow-data/spool"
)

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Orchestrator.ConcurrencyLimit == 0 {
		c.Orchestrator.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if c.Orchestrator.PollInterval == "" {
		c.Orchestrator.PollInterval = defaultPollIntervalRaw
	}
	if c.Orchestrator.MaxRetries == 0 {
		c.Orchestrator.MaxRetries = defaultMaxRetries
	}
	if c.Orchestrator.RetryBackoff == "" {
		c.Orchestrator.RetryBackoff = RetryBackoffExponential
	}
	if c.Orchestrator.RetryInitial == "" {
		c.Orchestrator.RetryInitial = defaultRetryInitialRaw
	}
	if c.Orchestrator.RetryMax == "" {
		c.Orchestrator.RetryMax = defaultRetryMaxRaw
	}
	if c.Orchestrator.Checkpoint.CompletedThreshold == 0 {
		c.Orchestrator.Checkpoint.CompletedThreshold = defaultCheckpointThreshold
	}
	if c.Orchestrator.Checkpoint.MaxInterval == "" {
		c.Orchestrator.Checkpoint.MaxInterval = defaultCheckpointMaxIntervalRw
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = "command"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = defaultSpoolDir
	}
	if c.Spool.Debounce == "" {
		c.Spool.Debounce = defaultSpoolDebounceRaw
	}
	if c.EventLog.Path == "" {
		c.EventLog.Path = defaultEventLogPath
	}
	if c.State.Dir == "" {
		c.State.Dir = defaultStateDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Reporter.NATS.Subject == "" {
		c.Reporter.NATS.Subject = "buildflow.status"
	}
	if c.Reporter.NATS.Stream == "" {
		c.Reporter.NATS.Stream = "BUILDFLOW"
	}
}
