// Package config provides configuration management for hdscan.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/indexer"
	"github.com/mrz1836/hdscan/internal/sweep"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Server    ServerConfig    `yaml:"server"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexerConfig defines the Electrum servers and how they are queried.
type IndexerConfig struct {
	// Servers are "host:port:s|v|t" entries tried in order.
	Servers []string `yaml:"servers"`

	// VerifyTLS verifies certificates of every TLS server, including
	// ":s" entries.
	VerifyTLS bool `yaml:"verify_tls"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	Rate             float64       `yaml:"rate"`
	Burst            int           `yaml:"burst"`
	MaxConcurrent    int64         `yaml:"max_concurrent"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	BreakerThreshold uint32        `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// DiscoveryConfig defines gap-limit scanning settings.
type DiscoveryConfig struct {
	GapLimit     int `yaml:"gap_limit"`
	BatchSize    int `yaml:"batch_size"`
	VerifyRounds int `yaml:"verify_rounds"`
}

// SweepConfig defines the opt-in sweep hook. Nothing is emitted unless
// Enabled is set and a destination is configured.
type SweepConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Threshold     int64         `yaml:"threshold"`
	Destination   string        `yaml:"destination"`
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ServerConfig defines the HTTP request surface.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat   string `yaml:"default_format"`
	Color           string `yaml:"color"`
	Verbose         bool   `yaml:"verbose"`
	ShowPrivateKeys bool   `yaml:"show_private_keys"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeKB int    `yaml:"max_size_kb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Load reads configuration from the specified file over the defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, scanerr.WithDetails(scanerr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err), map[string]string{"path": path})
	}

	return cfg, nil
}

// Save writes configuration to path through a temp file and rename, so a
// crash never leaves a truncated config behind.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default hdscan home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hdscan"
	}
	return filepath.Join(home, ".hdscan")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate checks the configuration and returns ErrConfigInvalid naming the
// first offending field.
func (c *Config) Validate() error {
	invalid := func(field string, value any) error {
		return scanerr.WithDetails(scanerr.ErrConfigInvalid, map[string]string{field: fmt.Sprint(value)})
	}

	if _, err := c.Endpoints(); err != nil {
		return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err), map[string]string{"indexer.servers": err.Error()})
	}
	if err := c.IndexerOptions().Validate(); err != nil {
		return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err), map[string]string{"indexer": err.Error()})
	}
	if c.Indexer.Rate < 0 {
		return invalid("indexer.rate", c.Indexer.Rate)
	}
	if err := c.ToAggregatorConfig().Validate(); err != nil {
		return err
	}

	if c.Sweep.Enabled {
		if strings.TrimSpace(c.Sweep.Destination) == "" {
			return invalid("sweep.destination", "required when sweep is enabled")
		}
		if c.Sweep.Threshold < 0 {
			return invalid("sweep.threshold", c.Sweep.Threshold)
		}
	}
	if c.Sweep.WebhookURL != "" {
		u, err := url.Parse(c.Sweep.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("sweep.webhook_url", "must be an http(s) URL")
		}
	}

	switch c.Output.DefaultFormat {
	case "auto", "text", "json":
	default:
		return invalid("output.default_format", c.Output.DefaultFormat)
	}
	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		return invalid("output.color", c.Output.Color)
	}

	if _, ok := logLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))]; !ok {
		return invalid("logging.level", c.Logging.Level)
	}
	if c.Logging.MaxSizeKB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_kb", c.Logging.MaxSizeKB)
	}

	return nil
}

// Endpoints parses the configured server list. An empty list falls back to
// the public default servers.
func (c *Config) Endpoints() ([]indexer.Endpoint, error) {
	servers := c.Indexer.Servers
	if len(servers) == 0 {
		servers = indexer.DefaultServers()
	}
	endpoints, err := indexer.ParseEndpoints(servers)
	if err != nil {
		return nil, err
	}
	if c.Indexer.VerifyTLS {
		for i := range endpoints {
			endpoints[i].SkipVerify = false
		}
	}
	return endpoints, nil
}

// IndexerOptions builds the connection options. Logger and Metrics are left
// for the caller to set.
func (c *Config) IndexerOptions() indexer.Options {
	opts := indexer.DefaultOptions()
	opts.HandshakeTimeout = c.Indexer.HandshakeTimeout
	opts.RequestTimeout = c.Indexer.RequestTimeout
	opts.MaxConcurrent = c.Indexer.MaxConcurrent
	opts.BreakerThreshold = c.Indexer.BreakerThreshold
	opts.BreakerCooldown = c.Indexer.BreakerCooldown
	if c.Indexer.Rate > 0 {
		opts.RateLimiter = indexer.NewRateLimiter(c.Indexer.Rate, c.Indexer.Burst)
	}
	return opts
}

// ToAggregatorConfig builds the immutable discovery configuration.
func (c *Config) ToAggregatorConfig() discovery.Config {
	cfg := discovery.DefaultConfig()
	cfg.GapLimit = c.Discovery.GapLimit
	cfg.BatchSize = c.Discovery.BatchSize
	cfg.MaxVerifyRounds = c.Discovery.VerifyRounds
	cfg.MaxRetries = c.Indexer.MaxRetries
	if c.Indexer.RetryBaseDelay > 0 {
		cfg.RetryBaseDelay = c.Indexer.RetryBaseDelay
	}
	return cfg
}

// SweepTriggerConfig returns the trigger settings.
func (c *Config) SweepTriggerConfig() sweep.Config {
	return sweep.Config{
		Enabled:     c.Sweep.Enabled,
		Threshold:   c.Sweep.Threshold,
		Destination: strings.TrimSpace(c.Sweep.Destination),
	}
}
