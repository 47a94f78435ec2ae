package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tradeagent/pkg/confkit"
	"tradeagent/pkg/portfolio"
)

// Config holds the orchestration knobs: queue bounds, shutdown grace and the
// cadence of snapshots and status reports. Durations are written as Go
// duration strings ("10s", "5m") and parsed during validation.
type Config struct {
	QueueSize       int    `yaml:"queue_size"`
	WorkerQueueSize int    `yaml:"worker_queue_size"`
	SnapshotPath    string `yaml:"snapshot_path"`
	DayBoundary     string `yaml:"day_boundary"`

	ShutdownGraceRaw    string `yaml:"shutdown_grace"`
	SnapshotIntervalRaw string `yaml:"snapshot_interval"`
	StatusIntervalRaw   string `yaml:"status_interval"`

	ShutdownGrace    time.Duration `yaml:"-"`
	SnapshotInterval time.Duration `yaml:"-"`
	StatusInterval   time.Duration `yaml:"-"`

	boundary portfolio.DayBoundary
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads engine configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/engine.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal engine config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the stock engine configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.WorkerQueueSize <= 0 {
		c.WorkerQueueSize = 32
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = "data/portfolio.snapshot"
	}
	if c.ShutdownGraceRaw == "" {
		c.ShutdownGraceRaw = "10s"
	}
	if c.SnapshotIntervalRaw == "" {
		c.SnapshotIntervalRaw = "5m"
	}
	if c.StatusIntervalRaw == "" {
		c.StatusIntervalRaw = "1m"
	}
}

func (c *Config) parseDurations() error {
	parse := func(name, raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("engine config: invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("engine config: %s must be positive, got %s", name, d)
		}
		return d, nil
	}

	var err error
	if c.ShutdownGrace, err = parse("shutdown_grace", c.ShutdownGraceRaw); err != nil {
		return err
	}
	if c.SnapshotInterval, err = parse("snapshot_interval", c.SnapshotIntervalRaw); err != nil {
		return err
	}
	if c.StatusInterval, err = parse("status_interval", c.StatusIntervalRaw); err != nil {
		return err
	}
	return nil
}

// Validate ensures configuration sanity and parses the day boundary.
func (c *Config) Validate() error {
	if c.QueueSize <= 0 {
		return errors.New("engine config: queue_size must be positive")
	}
	if c.WorkerQueueSize <= 0 {
		return errors.New("engine config: worker_queue_size must be positive")
	}
	if c.SnapshotPath == "" {
		return errors.New("engine config: snapshot_path is required")
	}
	boundary, err := portfolio.ParseDayBoundary(c.DayBoundary)
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	c.boundary = boundary
	return nil
}

// Boundary returns the parsed daily reset boundary.
func (c *Config) Boundary() portfolio.DayBoundary { return c.boundary }
