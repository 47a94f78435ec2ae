package risk

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"tradeagent/pkg/confkit"
)

// Config holds the per-run risk knobs. Percent fields are whole percents:
// position_size_percent 2 means 2% of balance per entry.
type Config struct {
	PositionSizePercent    float64 `yaml:"position_size_percent"`
	MaxPositionSizePercent float64 `yaml:"max_position_size_percent"`
	MaxOpenPositions       int     `yaml:"max_open_positions"`
	MaxDailyLossPercent    float64 `yaml:"max_daily_loss_percent"`
	ConfidenceThreshold    float64 `yaml:"confidence_threshold"`

	confidenceSet bool
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads risk configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/risk.yaml")
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
		return nil, fmt.Errorf("read risk config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal risk config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if _, ok := raw["confidence_threshold"]; ok {
			cfg.confidenceSet = true
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the stock risk configuration.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PositionSizePercent <= 0 {
		c.PositionSizePercent = 2
	}
	if c.MaxPositionSizePercent <= 0 {
		c.MaxPositionSizePercent = 5
	}
	if c.MaxOpenPositions <= 0 {
		c.MaxOpenPositions = 5
	}
	if c.MaxDailyLossPercent <= 0 {
		c.MaxDailyLossPercent = 5
	}
	if !c.confidenceSet && c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.7
	}
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if c.PositionSizePercent <= 0 || c.PositionSizePercent > 100 {
		return errors.New("risk config: position_size_percent must be in (0, 100]")
	}
	if c.MaxPositionSizePercent <= 0 || c.MaxPositionSizePercent > 100 {
		return errors.New("risk config: max_position_size_percent must be in (0, 100]")
	}
	if c.MaxOpenPositions <= 0 {
		return errors.New("risk config: max_open_positions must be positive")
	}
	if c.MaxDailyLossPercent <= 0 || c.MaxDailyLossPercent > 100 {
		return errors.New("risk config: max_daily_loss_percent must be in (0, 100]")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New("risk config: confidence_threshold must be between 0 and 1")
	}
	return nil
}
