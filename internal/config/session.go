package config

import (
	"github.com/shehryarbajwa/virtual-lab/internal/readiness"
	"github.com/shehryarbajwa/virtual-lab/internal/session"
)

// SessionConfig is the per-user state machine configuration.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.BudgetSeconds = c.BudgetSeconds()
	sc.StopTimeout = c.Session.StopTimeout.Duration
	sc.Probe = readiness.Config{
		Timeout:    c.Probe.Timeout.Duration,
		Interval:   c.Probe.Interval.Duration,
		MaxRetries: c.Probe.MaxRetries,
	}
	return sc
}
