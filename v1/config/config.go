// Package config holds the process-wide settings consumed by the
// coordination layer. Values come from defaults, an optional YAML file
// and environment overrides, in that order.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultStuckTimeout is how long a critical section may run before
	// the advisory stuck-transaction warning fires.
	DefaultStuckTimeout = 2 * time.Second

	// DefaultCommitLogCollection is the reserved collection backing the
	// lock queue.
	DefaultCommitLogCollection = "strata_commit_log"

	// EnvStuckTimeoutMs overrides the stuck threshold in milliseconds.
	EnvStuckTimeoutMs = "STRATA_STUCK_TIMEOUT_MS"
)

// Config carries the coordination settings read once at construction.
type Config struct {
	// StuckTimeout bounds the advisory warning timer. The critical
	// section is never cancelled; the timer only logs.
	StuckTimeout time.Duration `yaml:"-"`

	// StuckTimeoutMs is the YAML representation of StuckTimeout.
	StuckTimeoutMs int64 `yaml:"stuck_timeout_ms"`

	// CommitLogCollection names the reserved lock-record collection.
	CommitLogCollection string `yaml:"commit_log_collection"`
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() Config {
	c := Config{
		StuckTimeout:        DefaultStuckTimeout,
		CommitLogCollection: DefaultCommitLogCollection,
	}
	c.applyEnv()
	return c
}

// Load reads a YAML configuration file and applies environment
// overrides on top. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	c := Config{
		StuckTimeout:        DefaultStuckTimeout,
		CommitLogCollection: DefaultCommitLogCollection,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.StuckTimeoutMs > 0 {
		c.StuckTimeout = time.Duration(c.StuckTimeoutMs) * time.Millisecond
	}
	if c.CommitLogCollection == "" {
		c.CommitLogCollection = DefaultCommitLogCollection
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStuckTimeoutMs); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			c.StuckTimeout = time.Duration(ms) * time.Millisecond
		}
	}
}
