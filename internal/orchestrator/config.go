package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultNamespace is used when the caller does not name one.
	DefaultNamespace = "default"
	// DefaultRolloutTimeout bounds the wait for rollout convergence.
	DefaultRolloutTimeout = 300 * time.Second
	// DefaultHealthTimeout bounds the post-rollout health queries.
	DefaultHealthTimeout = 60 * time.Second
	// DefaultPollInterval is the cadence of rollout status reads.
	DefaultPollInterval = 2 * time.Second
)

// Config holds the caller-supplied configuration for one deploy run.
type Config struct {
	App            string
	Namespace      string
	ManifestPath   string
	RolloutTimeout time.Duration
	HealthTimeout  time.Duration
	PollInterval   time.Duration
}

// Validate checks required fields and fills in defaults for the
// optional ones. It mutates the receiver.
func (c *Config) Validate() error {
	if c.App == "" {
		return errors.New("application name is required")
	}
	if c.ManifestPath == "" {
		return errors.New("manifest path is required")
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}

	if c.RolloutTimeout == 0 {
		c.RolloutTimeout = DefaultRolloutTimeout
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.RolloutTimeout < 0 || c.HealthTimeout < 0 || c.PollInterval < 0 {
		return fmt.Errorf("timeouts must be positive (rollout %s, health %s, poll %s)",
			c.RolloutTimeout, c.HealthTimeout, c.PollInterval)
	}

	return nil
}
