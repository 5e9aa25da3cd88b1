package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the buildflow daemon.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Reporter     ReporterConfig     `yaml:"reporter"`
	Server       ServerConfig       `yaml:"server"`
	Spool        SpoolConfig        `yaml:"spool"`
	Schedules    []ScheduleConfig   `yaml:"schedules,omitempty"`
	EventLog     EventLogConfig     `yaml:"event_log"`
	State        StateConfig        `yaml:"state"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// OrchestratorConfig drives the core scheduling loop.
type OrchestratorConfig struct {
	ConcurrencyLimit int              `yaml:"concurrency_limit"`
	PollInterval     string           `yaml:"poll_interval,omitempty"`
	MaxRetries       int              `yaml:"max_retries"`
	RetryBackoff     RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitial     string           `yaml:"retry_initial_delay,omitempty"`
	RetryMax         string           `yaml:"retry_max_delay,omitempty"`
	Checkpoint       CheckpointConfig `yaml:"checkpoint"`
}

// CheckpointConfig controls the continue-as-new thresholds.
type CheckpointConfig struct {
	CompletedThreshold int    `yaml:"completed_threshold"`
	MaxInterval        string `yaml:"max_interval,omitempty"`
}

// ExecutorConfig selects and parameterizes the job executor.
// RegistryURL and WorkspaceRoot are explicit here rather than read from the
// process environment inside the loop, so they survive checkpoints.
type ExecutorConfig struct {
	Kind          string   `yaml:"kind"` // command|git
	Command       []string `yaml:"command,omitempty"`
	WorkspaceRoot string   `yaml:"workspace_root,omitempty"`
	RegistryURL   string   `yaml:"registry_url,omitempty"`
}

// ReporterConfig configures where terminal job status is reported.
type ReporterConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the JetStream status reporter.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port"`
}

// SpoolConfig configures file-drop job submission.
type SpoolConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir,omitempty"`
	Debounce string `yaml:"debounce,omitempty"`
}

// ScheduleConfig declares a recurring submission.
type ScheduleConfig struct {
	Name  string        `yaml:"name"`
	Every string        `yaml:"every"`
	Jobs  []ScheduleJob `yaml:"jobs"`
}

// ScheduleJob is one job template inside a schedule.
type ScheduleJob struct {
	Key      string            `yaml:"key"`
	Priority int               `yaml:"priority,omitempty"`
	Params   map[string]string `yaml:"params,omitempty"`
	Notes    string            `yaml:"notes,omitempty"`
}

// EventLogConfig configures the SQLite lifecycle event log.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// StateConfig configures checkpoint persistence.
type StateConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug|info|warn|error
	Format string `yaml:"format,omitempty"` // text|json
}

// Load reads the configuration file, layering .env files, YAML contents,
// environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	// Best effort: missing .env files are not an error.
	_ = godotenv.Load(".env", ".env.local")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// PollInterval returns the parsed poll interval.
func (o OrchestratorConfig) PollIntervalDuration() time.Duration {
	return mustDuration(o.PollInterval, defaultPollInterval)
}

// RetryInitialDuration returns the parsed initial backoff delay.
func (o OrchestratorConfig) RetryInitialDuration() time.Duration {
	return mustDuration(o.RetryInitial, defaultRetryInitial)
}

// RetryMaxDuration returns the parsed backoff cap.
func (o OrchestratorConfig) RetryMaxDuration() time.Duration {
	return mustDuration(o.RetryMax, defaultRetryMax)
}

// MaxIntervalDuration returns the parsed checkpoint age limit.
func (c CheckpointConfig) MaxIntervalDuration() time.Duration {
	return mustDuration(c.MaxInterval, defaultCheckpointMaxInterval)
}

// DebounceDuration returns the parsed spool debounce window.
func (s SpoolConfig) DebounceDuration() time.Duration {
	return mustDuration(s.Debounce, defaultSpoolDebounce)
}

// EveryDuration returns the parsed schedule interval.
func (s ScheduleConfig) EveryDuration() (time.Duration, error) {
	return time.ParseDuration(s.Every)
}

// mustDuration parses a duration string, falling back when empty or invalid.
// Validation rejects invalid strings up front, so the fallback only covers
// configs constructed in code.
func mustDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
