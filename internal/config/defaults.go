package config

import (
	"time"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/indexer"
)

// DefaultListen is the default HTTP listen address.
const DefaultListen = "127.0.0.1:8080"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.hdscan",
		Indexer: IndexerConfig{
			Servers:          indexer.DefaultServers(),
			HandshakeTimeout: 10 * time.Second,
			RequestTimeout:   30 * time.Second,
			Rate:             50,
			Burst:            20,
			MaxConcurrent:    10,
			MaxRetries:       discovery.DefaultMaxRetries,
			RetryBaseDelay:   discovery.DefaultRetryBaseDelay,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			GapLimit:     discovery.DefaultGapLimit,
			BatchSize:    discovery.DefaultBatchSize,
			VerifyRounds: discovery.DefaultMaxVerifyRounds,
		},
		Sweep: SweepConfig{
			Enabled: false,
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Listen:          DefaultListen,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level:     "error",
			File:      "~/.hdscan/hdscan.log",
			MaxSizeKB: 10 * 1024,
			MaxFiles:  3,
		},
	}
}
