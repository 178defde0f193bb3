// Package cli implements the hdscan command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hdscan/internal/config"
	"github.com/mrz1836/hdscan/internal/metrics"
	"github.com/mrz1836/hdscan/internal/output"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// rootOptions holds the persistent flags and the context built from them.
type rootOptions struct {
	home       string
	configFile string
	format     string
	verbose    bool

	cc *CommandContext
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hdscan",
		Short: "Discover the on-chain footprint of a Bitcoin key",
		Long: `hdscan finds the used addresses, balance and unspent outputs of a BIP39
mnemonic or a WIF private key by querying Electrum indexers.

A mnemonic is scanned across BIP44, BIP49 and BIP84 with gap-limit
discovery on the receive and change chains. A private key is checked for
its legacy, wrapped segwit and native segwit addresses. Without a key a
new wallet is generated offline.

Example:
  hdscan scan                       # prompts for the key
  hdscan scan --key-file seed.txt
  hdscan addresses --count 3 < seed.txt
  hdscan serve --listen 127.0.0.1:8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadContext(cmd, opts)
			if err != nil {
				return err
			}
			opts.cc = cc
			SetCmdContext(cmd, cc)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.home, "home", "", "hdscan data directory (default: ~/.hdscan)")
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: <home>/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "auto", "output format: text, json, auto")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output and debug logging")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return scanerr.WithCause(scanerr.ErrInvalidInput, err)
	})

	cmd.AddCommand(
		newScanCmd(),
		newAddressesCmd(),
		newGenerateCmd(),
		newServeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI with the process arguments. SIGINT and SIGTERM
// cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// run executes one command line and prints any error to stderr in the
// selected output format.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	defer opts.cc.Close()

	if err != nil {
		format := output.FormatText
		if opts.cc != nil && opts.cc.Formatter.IsJSON() {
			format = output.FormatJSON
		}
		_ = output.FormatError(stderr, err, format)
		if opts.cc != nil {
			opts.cc.Logger.Error("command failed: %s", scanerr.Code(err))
		}
	}
	return err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return scanerr.ExitCode(scanerr.ErrScanCanceled)
	}
	return scanerr.ExitCode(err)
}

// loadContext resolves configuration as defaults, config file,
// environment, then flags, and builds the command dependencies.
func loadContext(cmd *cobra.Command, opts *rootOptions) (*CommandContext, error) {
	home := opts.home
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}
	home = config.ExpandHome(home)

	path := opts.configFile
	if path == "" {
		path = config.Path(home)
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, scanerr.ErrConfigNotFound) && (opts.configFile == "" || cmd.Annotations[annotationNoConfig] == "true"):
		cfg = config.Defaults()
	default:
		return nil, err
	}

	config.ApplyEnvironment(cfg)
	cfg.Home = home
	if cfg.Logging.File == config.Defaults().Logging.File {
		cfg.Logging.File = filepath.Join(home, "hdscan.log")
	}
	if opts.verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = config.LogLevelDebug.String()
	}
	if opts.format != "" && opts.format != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = opts.format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(config.ParseLogLevel(cfg.Logging.Level),
		cfg.Logging.File, cfg.Logging.MaxSizeKB, cfg.Logging.MaxFiles)
	if err != nil {
		logger = config.NullLogger()
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	formatter := output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), stdout).
		ShowPrivateKeys(cfg.Output.ShowPrivateKeys)

	return &CommandContext{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Formatter:  formatter,
		Messenger:  output.NewMessenger(stderr, output.ColorEnabled(cfg.Output.Color, stderr)),
		Metrics:    metrics.Global,
	}, nil
}
