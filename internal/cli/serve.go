package cli

import (
	"net"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrz1836/hdscan/internal/server"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scans over HTTP",
		Long: `Serve scan requests over HTTP until interrupted.

  POST /api/v1/scan   {"key": "<mnemonic or WIF>"}   (empty key generates a wallet)
  GET  /healthz
  GET  /metrics       Prometheus metrics

Private keys are stripped from responses unless output.show_private_keys is
set. Bind to a loopback address unless the listener is protected: request
bodies carry key material.`,
		Example: `  hdscan serve
  hdscan serve --listen 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := GetCmdContext(cmd)
			if listen != "" {
				cc.Config.Server.Listen = listen
			}

			svc, err := cc.ScanService(nil)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Listen:          cc.Config.Server.Listen,
				ReadTimeout:     cc.Config.Server.ReadTimeout,
				WriteTimeout:    cc.Config.Server.WriteTimeout,
				ShutdownTimeout: cc.Config.Server.ShutdownTimeout,
				ShowPrivateKeys: cc.Config.Output.ShowPrivateKeys,
			}, svc, cc.Logger.WithFields(logrus.Fields{"component": "server"}), cc.Metrics)

			ln, err := net.Listen("tcp", cc.Config.Server.Listen)
			if err != nil {
				return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConfigInvalid, err),
					map[string]string{"server.listen": cc.Config.Server.Listen})
			}

			cc.Messenger.Infof("listening on http://%s", ln.Addr())
			if cc.Config.Output.ShowPrivateKeys {
				cc.Messenger.Warnf("responses include private keys")
			}

			if err := srv.Serve(cmd.Context(), ln); err != nil {
				return scanerr.WithCause(scanerr.ErrGeneral, err)
			}
			cc.Messenger.Infof("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default: server.listen, 127.0.0.1:8080)")

	return cmd
}
