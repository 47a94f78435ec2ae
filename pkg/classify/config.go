package classify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tradeagent/pkg/confkit"
)

// Backend identifiers accepted by Config.Backend.
const (
	BackendLLM   = "llm"
	BackendRules = "rules"
)

// Config controls runtime behaviour for the classification adapter.
type Config struct {
	Backend                string        `yaml:"backend"`
	Prefilter              bool          `yaml:"prefilter"`
	PromptTemplate         string        `yaml:"prompt_template"`
	DefaultPartialFraction float64       `yaml:"default_partial_fraction"`
	RequestTimeout         time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
	prefilterSet      bool
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open classifier config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads classifier configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/classifier.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read classifier config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal classifier config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if _, ok := raw["prefilter"]; ok {
			cfg.prefilterSet = true
		}
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.expandFields()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with defaults applied, suitable for tests and the
// rule backend which needs no external configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = BackendLLM
	}
	if !c.prefilterSet {
		c.Prefilter = true
	}
	if strings.TrimSpace(c.RequestTimeoutRaw) == "" {
		c.RequestTimeoutRaw = "30s"
	}
	if c.DefaultPartialFraction <= 0 {
		c.DefaultPartialFraction = 0.5
	}
}

func (c *Config) parseDurations() error {
	timeout, err := time.ParseDuration(c.RequestTimeoutRaw)
	if err != nil {
		return fmt.Errorf("classifier config: invalid request_timeout %q: %w", c.RequestTimeoutRaw, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("classifier config: request_timeout must be positive, got %s", timeout)
	}
	c.RequestTimeout = timeout
	return nil
}

func (c *Config) expandFields() {
	c.PromptTemplate = strings.TrimSpace(os.ExpandEnv(c.PromptTemplate))
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLLM, BackendRules:
	default:
		return fmt.Errorf("classifier config: unknown backend %q", c.Backend)
	}
	if c.DefaultPartialFraction <= 0 || c.DefaultPartialFraction > 1 {
		return errors.New("classifier config: default_partial_fraction must be in (0,1]")
	}
	return nil
}
