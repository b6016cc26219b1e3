package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	fetchpkg "github.com/hazyhaar/mntr/monitor/internal/fetch"
	"github.com/hazyhaar/mntr/monitor/internal/schedule"
)

// QueueConfig tunes the check worker pool.
type QueueConfig struct {
	// Visibility is how long a claimed check stays invisible. Default: 60s.
	Visibility time.Duration `yaml:"visibility"`
	// PollInterval is the worker poll cadence. Default: 1s.
	PollInterval time.Duration `yaml:"poll_interval"`
	// BatchSize is how many checks one poll claims. Default: 16.
	BatchSize int `yaml:"batch_size"`
	// MaxConcurrency bounds simultaneous page checks. Default: 4.
	MaxConcurrency int `yaml:"max_concurrency"`
	// MaxAttempts limits retries of a failing check. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`
}

// Config configures the monitor service.
type Config struct {
	// Fetch settings.
	Fetch fetchpkg.Config `yaml:"fetch"`

	// Scheduler settings.
	Scheduler schedule.Config `yaml:"scheduler"`

	// Queue settings.
	Queue QueueConfig `yaml:"queue"`
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "mntr/1.0"
	}
	if c.Scheduler.SweepInterval <= 0 {
		c.Scheduler.SweepInterval = 4 * time.Minute
	}
	if c.Queue.Visibility <= 0 {
		c.Queue.Visibility = 60 * time.Second
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = time.Second
	}
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = 16
	}
	if c.Queue.MaxConcurrency <= 0 {
		c.Queue.MaxConcurrency = 4
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
}

// LoadConfigFile reads a YAML config file. A missing file yields the zero
// Config, which New fills with defaults.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
