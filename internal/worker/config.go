package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the periodic task runner.
type Config struct {
	// Interval is how often each registered task runs.
	// Default: 30 seconds
	Interval time.Duration

	// TaskTimeout is the maximum time a single run is allowed to take.
	// Default: 10 seconds
	TaskTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight runs to finish.
	// Default: 10 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		TaskTimeout:     10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval < 1*time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %v", c.Interval)
	}
	if c.TaskTimeout < 1*time.Second {
		return fmt.Errorf("task timeout must be at least 1 second, got %v", c.TaskTimeout)
	}
	if c.TaskTimeout > c.Interval {
		return fmt.Errorf("task timeout (%v) must not exceed interval (%v)", c.TaskTimeout, c.Interval)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
