package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/output"
	"github.com/mrz1836/hdscan/internal/service/scan"
	"github.com/mrz1836/hdscan/internal/wallet"
)

// scanOptions holds the scan command flags.
type scanOptions struct {
	keyFile  string
	showKeys bool
	qr       bool
	gapLimit int
	servers  []string
	timeout  time.Duration
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [mnemonic words... | wif | -]",
		Short: "Scan a mnemonic or private key for on-chain activity",
		Long: `Scan a BIP39 mnemonic or a WIF private key against Electrum indexers.

A mnemonic is scanned on BIP44, BIP49 and BIP84, receive and change chains,
until the gap limit of consecutive unused addresses is reached. The report
lists used addresses, the next fresh address of every chain, the total
balance and the unspent outputs.

A private key is checked for its three single-key addresses.

With no key (empty prompt or empty stdin) a new 12-word wallet is generated
and its first addresses are shown without contacting an indexer.

Key material is read from --key-file, stdin or a hidden prompt. Passing it
as arguments works but may leave it in shell history.`,
		Example: `  # Prompt for the key
  hdscan scan

  # Read the key from a file, JSON output
  hdscan scan --key-file seed.txt -o json

  # Pipe a mnemonic, use a private server
  echo "abandon ... about" | hdscan scan --server electrum.example.com:50002:s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.keyFile, "key-file", "k", "", "read the mnemonic or WIF from a file")
	cmd.Flags().BoolVar(&opts.showKeys, "show-keys", false, "include WIF private keys of found addresses")
	cmd.Flags().BoolVar(&opts.qr, "qr", false, "show a QR code of the fresh receive address")
	cmd.Flags().IntVar(&opts.gapLimit, "gap-limit", 0, "consecutive unused addresses that end a chain scan")
	cmd.Flags().StringSliceVar(&opts.servers, "server", nil, "Electrum server host:port:s|t (repeatable, tried in order)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the scan after this duration (0 = no limit)")

	return cmd
}

func runScan(cmd *cobra.Command, args []string, opts *scanOptions) error {
	cc := GetCmdContext(cmd)

	if err := applyScanFlags(cc, opts.gapLimit, opts.servers); err != nil {
		return err
	}
	formatter := cc.Formatter.ShowPrivateKeys(opts.showKeys || cc.Config.Output.ShowPrivateKeys)

	input, err := readKey(cmd, args, opts.keyFile)
	if err != nil {
		return err
	}

	var progress discovery.ProgressCallback
	if cc.Config.Output.Verbose {
		progress = progressPrinter(cmd.ErrOrStderr())
	}

	svc, err := cc.ScanService(progress)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, opts.timeout)
	defer cancel()

	rep, err := svc.Scan(ctx, input)
	if err != nil {
		return err
	}

	if rep.Generated && formatter.IsJSON() {
		cc.Messenger.Warnf("no key supplied: generated a new wallet. Write the mnemonic down and keep it offline.")
	}
	if err := formatter.Report(rep); err != nil {
		return err
	}

	if opts.qr && !formatter.IsJSON() {
		renderQR(cmd, receiveAddress(rep))
	}
	return nil
}

// applyScanFlags overrides discovery settings and re-validates them.
func applyScanFlags(cc *CommandContext, gapLimit int, servers []string) error {
	if gapLimit != 0 {
		cc.Config.Discovery.GapLimit = gapLimit
	}
	if len(servers) > 0 {
		cc.Config.Indexer.Servers = servers
	}
	return cc.Config.Validate()
}

func renderQR(cmd *cobra.Command, address string) {
	output.RenderAddressQR(cmd.OutOrStdout(), address, output.DefaultQRConfig())
}

// receiveAddress picks the address to encode as a QR code: the native
// segwit fresh receive address of a wallet, or the found address of a key.
func receiveAddress(rep *scan.Report) string {
	switch {
	case rep.Wallet != nil:
		if sr, ok := rep.Wallet.Schemes[wallet.NativeSegwit.Name()]; ok {
			return sr.FreshReceive.Address
		}
	case rep.SingleKey != nil:
		if rep.SingleKey.Found != nil {
			return rep.SingleKey.Found.Address
		}
		for _, a := range rep.SingleKey.Addresses {
			if a.Scheme == wallet.NativeSegwit {
				return a.Address
			}
		}
	}
	return ""
}

// progressPrinter writes one line per finished or failed branch.
func progressPrinter(w io.Writer) discovery.ProgressCallback {
	return func(u discovery.ProgressUpdate) {
		switch u.Phase {
		case "connecting":
			outln(w, "Connecting to indexer...")
		case "done", "failed":
			msg := ""
			if u.Message != "" {
				msg = " (" + u.Message + ")"
			}
			out(w, "  %-14s %-8s %s: %d addresses, %s%s\n",
				u.Scheme.String(), u.Chain.String(), u.Phase, u.AddressesScanned,
				output.FormatAmount(u.BalanceFound), msg)
		}
	}
}
