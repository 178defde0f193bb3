package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

func newGenerateCmd() *cobra.Command {
	var (
		words    int
		showKeys bool
		qr       bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new wallet offline",
		Long: `Generate a new BIP39 mnemonic and show its account public keys and first
receive and change addresses on every scheme. No indexer is contacted.`,
		Example: `  hdscan generate
  hdscan generate --words 24 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !validWordCount(words) {
				return scanerr.WithSuggestion(
					scanerr.WithDetails(scanerr.ErrInvalidInput, map[string]string{"words": strconv.Itoa(words)}),
					"use 12, 15, 18, 21 or 24 words",
				)
			}

			cc := GetCmdContext(cmd)
			cc.MnemonicWords = words

			svc, err := cc.ScanService(nil)
			if err != nil {
				return err
			}
			rep, err := svc.Scan(cmd.Context(), "")
			if err != nil {
				return err
			}

			formatter := cc.Formatter.ShowPrivateKeys(showKeys || cc.Config.Output.ShowPrivateKeys)
			if err := formatter.Report(rep); err != nil {
				return err
			}
			if qr && !formatter.IsJSON() {
				renderQR(cmd, receiveAddress(rep))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&words, "words", "w", 12, "mnemonic length: 12, 15, 18, 21 or 24")
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "include WIF private keys of the shown addresses")
	cmd.Flags().BoolVar(&qr, "qr", false, "show a QR code of the first native segwit receive address")

	return cmd
}

func validWordCount(n int) bool {
	switch n {
	case 12, 15, 18, 21, 24:
		return true
	default:
		return false
	}
}
