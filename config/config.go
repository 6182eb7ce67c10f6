// ABOUTME: YAML configuration with environment expansion and duration parsing
// ABOUTME: Zero values fall back to production defaults at the point of use

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/chatsync/ws"
)

// Config is the engine's complete configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Network NetworkConfig `yaml:"network"`
	Guard   GuardConfig   `yaml:"guard"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig locates the per-server databases.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// NetworkConfig holds REST and push-channel timing.
type NetworkConfig struct {
	RequestTimeout time.Duration `yaml:"-"`
	PingInterval   time.Duration `yaml:"-"`
	BackoffMin     time.Duration `yaml:"-"`
	BackoffMax     time.Duration `yaml:"-"`
	StatusDelay    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
	PingIntervalRaw   string `yaml:"ping_interval"`
	BackoffMinRaw     string `yaml:"backoff_min"`
	BackoffMaxRaw     string `yaml:"backoff_max"`
	StatusDelayRaw    string `yaml:"status_delay"`
}

// GuardConfig sizes the ephemeral intent guard.
type GuardConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	TTLRaw string `yaml:"ttl"`
}

// PushSettings converts the network section into push-channel settings.
// Returns nil when every knob is unset so the channel defaults apply.
func (n NetworkConfig) PushSettings() *ws.Settings {
	if n.PingInterval == 0 && n.BackoffMin == 0 && n.BackoffMax == 0 {
		return nil
	}
	s := ws.DefaultSettings()
	if n.PingInterval > 0 {
		s.PingInterval = n.PingInterval
	}
	if n.BackoffMin > 0 {
		s.BackoffMin = n.BackoffMin
	}
	if n.BackoffMax > 0 {
		s.BackoffMax = n.BackoffMax
	}
	return s
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a configuration file. Environment variables in
// ${VAR_NAME} form are expanded; duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks required fields and range constraints.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Network.BackoffMin > 0 && c.Network.BackoffMax > 0 && c.Network.BackoffMin > c.Network.BackoffMax {
		return fmt.Errorf("network.backoff_min must not exceed network.backoff_max")
	}
	if c.Guard.MaxSize < 0 {
		return fmt.Errorf("guard.max_size must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"network.request_timeout", cfg.Network.RequestTimeoutRaw, &cfg.Network.RequestTimeout},
		{"network.ping_interval", cfg.Network.PingIntervalRaw, &cfg.Network.PingInterval},
		{"network.backoff_min", cfg.Network.BackoffMinRaw, &cfg.Network.BackoffMin},
		{"network.backoff_max", cfg.Network.BackoffMaxRaw, &cfg.Network.BackoffMax},
		{"network.status_delay", cfg.Network.StatusDelayRaw, &cfg.Network.StatusDelay},
		{"guard.ttl", cfg.Guard.TTLRaw, &cfg.Guard.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
