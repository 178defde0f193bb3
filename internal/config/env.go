package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome             = "HDSCAN_HOME"
	EnvServers          = "HDSCAN_SERVERS"
	EnvVerifyTLS        = "HDSCAN_VERIFY_TLS"
	EnvGapLimit         = "HDSCAN_GAP_LIMIT"
	EnvMaxConcurrent    = "HDSCAN_MAX_CONCURRENT"
	EnvLogLevel         = "HDSCAN_LOG_LEVEL"
	EnvOutputFormat     = "HDSCAN_OUTPUT_FORMAT"
	EnvVerbose          = "HDSCAN_VERBOSE"
	EnvListen           = "HDSCAN_LISTEN"
	EnvSweepEnabled     = "HDSCAN_SWEEP_ENABLED"
	EnvSweepURL         = "HDSCAN_SWEEP_URL"
	EnvSweepSecret      = "HDSCAN_SWEEP_SECRET" // #nosec G101 -- false positive, this is a const name not a credential
	EnvSweepDestination = "HDSCAN_SWEEP_DESTINATION"
	EnvSweepThreshold   = "HDSCAN_SWEEP_THRESHOLD"
	EnvNoColor          = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// Numeric values that do not parse are ignored.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	// HDSCAN_SERVERS is a comma separated failover list
	if v := os.Getenv(EnvServers); v != "" {
		var servers []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
		if len(servers) > 0 {
			cfg.Indexer.Servers = servers
		}
	}

	if v := os.Getenv(EnvVerifyTLS); v != "" {
		cfg.Indexer.VerifyTLS = parseBool(v)
	}

	if v := os.Getenv(EnvGapLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Discovery.GapLimit = n
		}
	}

	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Indexer.MaxConcurrent = n
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvListen); v != "" {
		cfg.Server.Listen = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSweepEnabled); v != "" {
		cfg.Sweep.Enabled = parseBool(v)
	}

	if v := os.Getenv(EnvSweepURL); v != "" {
		cfg.Sweep.WebhookURL = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSweepSecret); v != "" {
		cfg.Sweep.WebhookSecret = v
	}

	if v := os.Getenv(EnvSweepDestination); v != "" {
		cfg.Sweep.Destination = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSweepThreshold); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.Sweep.Threshold = n
		}
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
