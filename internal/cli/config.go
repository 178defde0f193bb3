package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/hdscan/internal/config"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

const maskedSecret = "********"

// annotationNoConfig lets a command run when an explicit --config file
// does not exist yet.
const annotationNoConfig = "hdscan/no-config"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Create and inspect the hdscan configuration file.

Values are resolved as defaults, then the config file, then HDSCAN_*
environment variables, then command-line flags.`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := GetCmdContext(cmd)

			_, err := os.Stat(cc.ConfigPath)
			switch {
			case err == nil && !force:
				return scanerr.WithSuggestion(
					scanerr.WithDetails(scanerr.ErrInvalidInput, map[string]string{"path": cc.ConfigPath}),
					"the config file already exists; use --force to overwrite it",
				)
			case err != nil && !errors.Is(err, os.ErrNotExist):
				return scanerr.WithCause(scanerr.ErrGeneral, err)
			}

			cfg := config.Defaults()
			cfg.Home = cc.Config.Home
			cfg.Logging.File = filepath.Join(cc.Config.Home, "hdscan.log")
			if err := config.Save(cfg, cc.ConfigPath); err != nil {
				return scanerr.WithCause(scanerr.ErrGeneral, err)
			}

			cc.Messenger.Successf("wrote %s", cc.ConfigPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := GetCmdContext(cmd)

			cfg := *cc.Config
			if cfg.Sweep.WebhookSecret != "" {
				cfg.Sweep.WebhookSecret = maskedSecret
			}

			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return scanerr.WithCause(scanerr.ErrGeneral, err)
			}
			if !cc.Formatter.IsJSON() {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			// Round trip through YAML so JSON keys match the file.
			var doc map[string]any
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return scanerr.WithCause(scanerr.ErrGeneral, err)
			}
			return cc.Formatter.Print(doc)
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outln(cmd.OutOrStdout(), GetCmdContext(cmd).ConfigPath)
			return nil
		},
	}
}
