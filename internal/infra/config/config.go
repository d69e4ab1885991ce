package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Channel  ChannelConfig  `yaml:"channel"`
	Backup   BackupConfig   `yaml:"backup"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Health   HealthConfig   `yaml:"health"`
	Store    StoreConfig    `yaml:"store"`
	Security SecurityConfig `yaml:"security"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// TokenConfig maps a gateway bearer token to the user it belongs to.
type TokenConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// GatewayConfig holds websocket push gateway settings.
type GatewayConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Tokens         []TokenConfig `yaml:"tokens"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	BurstSize      int           `yaml:"burst_size"`
}

// ChannelConfig holds the outbound messaging-channel API settings.
type ChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"` // may carry the "enc:" prefix
}

// BackupConfig holds the sandbox backup scheduler settings.
type BackupConfig struct {
	Interval   string `yaml:"interval"` // duration string, default "30m"
	Debounce   string `yaml:"debounce"` // duration string, default "30s"
	SandboxDir string `yaml:"sandbox_dir"`
}

// IntervalDuration returns the parsed periodic backup interval.
func (c BackupConfig) IntervalDuration() time.Duration {
	return parseDurationOr(c.Interval, 30*time.Minute)
}

// DebounceDuration returns the parsed debounce delay.
func (c BackupConfig) DebounceDuration() time.Duration {
	return parseDurationOr(c.Debounce, 30*time.Second)
}

// WebhookConfig holds defaults applied to webhooks created without
// explicit values.
type WebhookConfig struct {
	RetryCount int `yaml:"retry_count"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// HealthConfig holds connection health monitor settings.
type HealthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"` // duration string, default "1m"
}

// IntervalDuration returns the parsed health check interval.
func (c HealthConfig) IntervalDuration() time.Duration {
	return parseDurationOr(c.Interval, time.Minute)
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database path
}

// SecurityConfig holds secret handling settings.
type SecurityConfig struct {
	// Passphrase encrypts webhook secrets and channel tokens at rest.
	// Overridden by the AGENTHUB_PASSPHRASE environment variable.
	Passphrase string `yaml:"passphrase"`
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		Gateway: GatewayConfig{
			Addr:           ":3900",
			RequestsPerMin: 120,
			BurstSize:      30,
		},
		Backup:   BackupConfig{Interval: "30m", Debounce: "30s", SandboxDir: "./data/sandboxes"},
		Webhooks: WebhookConfig{RetryCount: 3, TimeoutMs: 5000},
		Health:   HealthConfig{Enabled: true, Interval: "1m"},
		Store:    StoreConfig{Path: "./data/agenthub.db"},
	}
}

// Load reads the config file at path, applies defaults, and decrypts
// "enc:" values when a passphrase is available. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if env := os.Getenv("AGENTHUB_PASSPHRASE"); env != "" {
		cfg.Security.Passphrase = env
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	for _, d := range []struct{ name, val string }{
		{"backup.interval", c.Backup.Interval},
		{"backup.debounce", c.Backup.Debounce},
		{"health.interval", c.Health.Interval},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", d.name, d.val, err)
		}
	}
	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("config: webhooks.retry_count must not be negative")
	}
	if c.Webhooks.TimeoutMs < 0 {
		return fmt.Errorf("config: webhooks.timeout_ms must not be negative")
	}
	return nil
}

// decryptSecrets resolves "enc:" prefixed values in place.
func (c *Config) decryptSecrets() error {
	if c.Security.Passphrase == "" {
		return nil
	}
	if strings.HasPrefix(c.Channel.Token, "enc:") {
		plain, err := DecryptValue(strings.TrimPrefix(c.Channel.Token, "enc:"), c.Security.Passphrase)
		if err != nil {
			return fmt.Errorf("decrypt channel token: %w", err)
		}
		c.Channel.Token = plain
	}
	for i, t := range c.Gateway.Tokens {
		if strings.HasPrefix(t.Token, "enc:") {
			plain, err := DecryptValue(strings.TrimPrefix(t.Token, "enc:"), c.Security.Passphrase)
			if err != nil {
				return fmt.Errorf("decrypt gateway token for %s: %w", t.UserID, err)
			}
			c.Gateway.Tokens[i].Token = plain
		}
	}
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
