package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hdscan/internal/config"
	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/metrics"
	"github.com/mrz1836/hdscan/internal/output"
	"github.com/mrz1836/hdscan/internal/service/scan"
	"github.com/mrz1836/hdscan/internal/sweep"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *config.Logger
	Formatter  *output.Formatter
	Messenger  *output.Messenger
	Metrics    *metrics.Metrics

	// MnemonicWords is the length of generated mnemonics.
	MnemonicWords int
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	return nil
}

// Close releases the logger.
func (c *CommandContext) Close() {
	if c != nil && c.Logger != nil {
		_ = c.Logger.Close()
	}
}

// ScanService wires the configured indexer, aggregator and sweep trigger
// into a scan service. progress may be nil.
func (c *CommandContext) ScanService(progress discovery.ProgressCallback) (*scan.Service, error) {
	endpoints, err := c.Config.Endpoints()
	if err != nil {
		return nil, scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err),
			map[string]string{"field": "indexer.servers"})
	}

	opts := c.Config.IndexerOptions()
	opts.Logger = c.Logger
	opts.Metrics = c.Metrics

	aggOpts := []discovery.Option{
		discovery.WithLogger(c.Logger),
		discovery.WithMetrics(c.Metrics),
		discovery.WithSweepTrigger(c.sweepTrigger()),
	}
	if progress != nil {
		aggOpts = append(aggOpts, discovery.WithProgress(progress))
	}

	agg, err := discovery.NewAggregator(c.Config.ToAggregatorConfig(), scan.NewConnector(endpoints, opts), aggOpts...)
	if err != nil {
		return nil, err
	}

	return scan.NewService(&scan.Config{
		Scanner:       agg,
		MnemonicWords: c.MnemonicWords,
		Logger:        c.Logger,
	}), nil
}

// sweepTrigger returns nil unless sweeping is enabled. Without a webhook
// URL requests are only logged.
func (c *CommandContext) sweepTrigger() *sweep.Trigger {
	cfg := c.Config.SweepTriggerConfig()
	if !cfg.Enabled {
		return nil
	}

	var hook sweep.Hook = sweep.LogHook{Logger: c.Logger}
	if c.Config.Sweep.WebhookURL != "" {
		hook = sweep.NewWebhookHook(c.Config.Sweep.WebhookURL, c.Config.Sweep.WebhookSecret, c.Config.Sweep.Timeout)
	}
	return sweep.NewTrigger(cfg, hook, nil, c.Logger, c.Metrics)
}

// contextWithTimeout returns a timeout context rooted in the command
// context. A zero timeout only adds cancellation.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, d)
}
