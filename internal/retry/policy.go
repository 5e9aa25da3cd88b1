package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// Policy encapsulates retry/backoff settings for failed job executions.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // attempts before a failure becomes permanent
}

// DefaultPolicy returns the orchestrator default: exponential backoff
// starting at one minute (1m, 2m, 4m, ...), capped at one hour, three
// attempts before the failure is reported as permanent.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffExponential, Initial: time.Minute, Max: time.Hour, MaxRetries: 3}
}

// FromConfig builds a policy from the orchestrator configuration;
// zero/invalid values fall back to defaults.
func FromConfig(oc config.OrchestratorConfig) Policy {
	return NewPolicy(oc.RetryBackoff, oc.RetryInitialDuration(), oc.RetryMaxDuration(), oc.MaxRetries)
}

// NewPolicy builds a policy from raw fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	default:
		// unknown -> keep default
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay before the given retry attempt
// (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffLinear:
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	default: // exponential
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Exhausted reports whether the given failure count leaves no retry budget.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
