package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// maxAddressCount bounds offline derivation per scheme and chain.
const maxAddressCount = 1000

func newAddressesCmd() *cobra.Command {
	var (
		keyFile  string
		count    int
		showKeys bool
	)

	cmd := &cobra.Command{
		Use:   "addresses [mnemonic words... | wif | -]",
		Short: "Derive addresses offline",
		Long: `Derive the first addresses of a mnemonic on every scheme and chain, or the
three addresses of a WIF private key, without contacting an indexer.

Useful to check that hdscan derives the same addresses as another wallet
before trusting a scan.`,
		Example: `  hdscan addresses --key-file seed.txt
  hdscan addresses --count 20 -o json < seed.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count > maxAddressCount {
				return scanerr.WithDetails(scanerr.ErrInvalidInput,
					map[string]string{"count": "at most " + strconv.Itoa(maxAddressCount)})
			}
			cc := GetCmdContext(cmd)

			input, err := readKey(cmd, args, keyFile)
			if err != nil {
				return err
			}

			svc, err := cc.ScanService(nil)
			if err != nil {
				return err
			}
			records, err := svc.Addresses(input, count)
			if err != nil {
				return err
			}

			return cc.Formatter.ShowPrivateKeys(showKeys || cc.Config.Output.ShowPrivateKeys).Addresses(records)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key-file", "k", "", "read the mnemonic or WIF from a file")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "addresses per scheme and chain")
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "include WIF private keys")

	return cmd
}
