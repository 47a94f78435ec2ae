package broker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration for one or more execution venues.
type Config struct {
	Default string                  `yaml:"default"`
	Venues  map[string]*VenueConfig `yaml:"venues"`
}

// VenueConfig describes how to construct a specific venue adapter instance.
type VenueConfig struct {
	Type      string `yaml:"type"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`

	// StartingBalance seeds the account equity of simulated venues.
	StartingBalance float64 `yaml:"starting_balance"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// AdapterBuilder constructs an Adapter from configuration.
type AdapterBuilder func(name string, cfg *VenueConfig) (Adapter, error)

var (
	adapterRegistry   = make(map[string]AdapterBuilder)
	adapterRegistryMu sync.RWMutex
)

// Register associates a builder with a venue type.
func Register(typeName string, builder AdapterBuilder) {
	adapterRegistryMu.Lock()
	defer adapterRegistryMu.Unlock()
	adapterRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupBuilder(typeName string) (AdapterBuilder, bool) {
	adapterRegistryMu.RLock()
	defer adapterRegistryMu.RUnlock()
	builder, ok := adapterRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// GetAdapter constructs a single adapter for the given type using the
// provided configuration. Convenience for tests and callers that do not want
// a full venue map.
func GetAdapter(typeName string, cfg *VenueConfig) (Adapter, error) {
	if cfg == nil {
		cfg = &VenueConfig{}
	}
	cfgCopy := *cfg
	cfgCopy.Type = typeName
	if err := cfgCopy.validate("inline"); err != nil {
		return nil, err
	}
	builder, ok := lookupBuilder(cfgCopy.Type)
	if !ok {
		return nil, fmt.Errorf("broker venue: unsupported type %q", cfgCopy.Type)
	}
	return builder("inline", &cfgCopy)
}

// LoadConfig reads venue configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open broker config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read broker config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal broker config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Venues == nil {
		c.Venues = make(map[string]*VenueConfig)
	}
	for name, venue := range c.Venues {
		if venue == nil {
			venue = &VenueConfig{}
			c.Venues[name] = venue
		}
		venue.expandEnv()
		if err := venue.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (v *VenueConfig) expandEnv() {
	v.Type = strings.TrimSpace(os.ExpandEnv(v.Type))
	v.APIKey = strings.TrimSpace(os.ExpandEnv(v.APIKey))
	v.APISecret = strings.TrimSpace(os.ExpandEnv(v.APISecret))
	v.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(v.TimeoutRaw))
}

func (v *VenueConfig) parseDurations(name string) error {
	if v.TimeoutRaw == "" {
		v.Timeout = 0
		return nil
	}
	d, err := time.ParseDuration(v.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("broker venue %s: invalid timeout %q: %w", name, v.TimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("broker venue %s: timeout must be positive, got %s", name, d)
	}
	v.Timeout = d
	return nil
}

// Validate ensures all venues have sane configuration.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("broker config: venues cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Venues[c.Default]; !ok {
			return fmt.Errorf("broker config: default venue %q not defined", c.Default)
		}
	}

	for name, venue := range c.Venues {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("broker config: venue name cannot be empty")
		}
		if err := venue.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (v *VenueConfig) validate(name string) error {
	if v == nil {
		return fmt.Errorf("broker config: venue %s is nil", name)
	}
	if strings.TrimSpace(v.Type) == "" {
		return fmt.Errorf("broker config: venue %s must specify type", name)
	}

	if _, ok := lookupBuilder(v.Type); !ok {
		return fmt.Errorf("broker config: venue %s has unsupported type %q", name, v.Type)
	}

	if strings.ToLower(v.Type) == "binance" && (v.APIKey == "" || v.APISecret == "") {
		return fmt.Errorf("broker config: venue %s requires api_key and api_secret", name)
	}
	if v.StartingBalance < 0 {
		return fmt.Errorf("broker config: venue %s starting_balance cannot be negative", name)
	}
	return nil
}

// BuildAdapters instantiates venue adapters according to the configuration.
func (c *Config) BuildAdapters() (map[string]Adapter, error) {
	result := make(map[string]Adapter, len(c.Venues))
	for name, venueCfg := range c.Venues {
		builder, ok := lookupBuilder(venueCfg.Type)
		if !ok {
			return nil, fmt.Errorf("broker venue %s: unsupported type %q", name, venueCfg.Type)
		}
		adapter, err := builder(name, venueCfg)
		if err != nil {
			return nil, fmt.Errorf("broker venue %s: %w", name, err)
		}
		result[name] = adapter
	}
	return result, nil
}
