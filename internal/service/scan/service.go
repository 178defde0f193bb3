// Package scan dispatches raw key input to wallet discovery, a single-key
// check or offline generation of a new wallet.
package scan

import (
	"context"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/hdscan/internal/crypto"
	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/wallet"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// DefaultMnemonicWords is the length of generated mnemonics.
const DefaultMnemonicWords = 12

const invalidKeySuggestion = "provide a 12-24 word BIP39 mnemonic or a WIF private key"

// Service handles scan requests. It is safe for concurrent use.
type Service struct {
	scanner WalletScanner
	net     *chaincfg.Params
	words   int
	logger  Logger
}

// Config contains dependencies for creating a scan service.
type Config struct {
	Scanner WalletScanner

	// Net defaults to mainnet.
	Net *chaincfg.Params

	// MnemonicWords is the length of generated phrases. Default: 12.
	MnemonicWords int

	Logger Logger
}

// NewService creates a new scan service instance.
func NewService(cfg *Config) *Service {
	s := &Service{
		scanner: cfg.Scanner,
		net:     cfg.Net,
		words:   cfg.MnemonicWords,
		logger:  cfg.Logger,
	}
	if s.net == nil {
		s.net = &chaincfg.MainNetParams
	}
	if s.words == 0 {
		s.words = DefaultMnemonicWords
	}
	return s
}

// Scan classifies input once and runs the matching branch. Malformed input
// fails with ErrInvalidKeyMaterial before any network contact.
func (s *Service) Scan(ctx context.Context, input string) (*Report, error) {
	id, err := s.parse(input)
	if err != nil {
		return nil, err
	}

	s.debug("scan request: %s", id)

	switch id.Kind() {
	case wallet.KindMnemonic:
		return s.scanMnemonic(ctx, id.Mnemonic())
	case wallet.KindPrivateKey:
		return s.checkKey(ctx, id.WIF())
	default:
		return s.generate()
	}
}

// Addresses derives the first count addresses of every scheme and chain
// without contacting an indexer. A private key yields its scheme addresses.
func (s *Service) Addresses(input string, count int) ([]wallet.AddressRecord, error) {
	if count < 1 {
		return nil, scanerr.WithDetails(scanerr.ErrInvalidInput, map[string]string{"count": "must be at least 1"})
	}

	id, err := s.parse(input)
	if err != nil {
		return nil, err
	}

	switch id.Kind() {
	case wallet.KindNone:
		return nil, scanerr.WithSuggestion(
			scanerr.WithDetails(scanerr.ErrInvalidInput, map[string]string{"key": "required"}),
			invalidKeySuggestion,
		)
	case wallet.KindPrivateKey:
		records, err := wallet.SingleKeyRecords(id.WIF(), s.net)
		if err != nil {
			return nil, scanerr.WithCause(scanerr.ErrDerivationFailed, err)
		}
		return records, nil
	}

	seed, err := s.seed(id.Mnemonic())
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	var records []wallet.AddressRecord
	err = seed.Use(func(b []byte) error {
		d, err := wallet.NewDeriver(b, s.net)
		if err != nil {
			return err
		}
		for _, scheme := range wallet.Schemes() {
			for _, chain := range wallet.Chains() {
				for i := 0; i < count; i++ {
					rec, err := d.Derive(scheme, chain, uint32(i)) //nolint:gosec // count is bounded by the caller
					if err != nil {
						return err
					}
					records = append(records, *rec)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, scanerr.WithCause(scanerr.ErrDerivationFailed, err)
	}
	return records, nil
}

func (s *Service) parse(input string) (wallet.KeyIdentifier, error) {
	id, typos, err := wallet.ParseKeyIdentifier(input, s.net)
	if err == nil {
		return id, nil
	}

	// The input itself is never echoed back; typo hints only name words
	// that are not in the BIP39 list.
	suggestion := invalidKeySuggestion
	if len(typos) > 0 {
		suggestion = wallet.FormatTypoSuggestions(typos)
	}
	return id, scanerr.WithSuggestion(scanerr.WithCause(scanerr.ErrInvalidKeyMaterial, err), suggestion)
}

func (s *Service) seed(mnemonic string) (*crypto.Secret, error) {
	b, err := wallet.MnemonicToSeed(mnemonic, "")
	if err != nil {
		return nil, scanerr.WithCause(scanerr.ErrInvalidKeyMaterial, err)
	}
	return crypto.SecretFromSlice(b), nil
}

func (s *Service) scanMnemonic(ctx context.Context, mnemonic string) (*Report, error) {
	seed, err := s.seed(mnemonic)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	snap, err := s.scanner.Discover(ctx, seed)
	if err != nil {
		return nil, err
	}
	return &Report{Kind: wallet.KindMnemonic, Wallet: snap}, nil
}

func (s *Service) checkKey(ctx context.Context, wif *btcutil.WIF) (*Report, error) {
	records, err := wallet.SingleKeyRecords(wif, s.net)
	if err != nil {
		return nil, scanerr.WithCause(scanerr.ErrDerivationFailed, err)
	}

	statuses, err := s.scanner.Check(ctx, records)
	if err != nil {
		return nil, err
	}

	rep := &SingleKeyReport{Addresses: statuses, UTXOs: []discovery.UTXO{}}
	for i := range statuses {
		if !statuses[i].Used() {
			continue
		}
		if rep.Found == nil {
			found := statuses[i]
			rep.Found = &found
		}
		rep.HasActivity = true
		rep.TotalBalance += statuses[i].TotalBalance()
		rep.UTXOs = append(rep.UTXOs, statuses[i].UTXOs...)
	}
	sort.Slice(rep.UTXOs, func(i, j int) bool {
		if rep.UTXOs[i].TxID != rep.UTXOs[j].TxID {
			return rep.UTXOs[i].TxID < rep.UTXOs[j].TxID
		}
		return rep.UTXOs[i].Vout < rep.UTXOs[j].Vout
	})

	return &Report{Kind: wallet.KindPrivateKey, SingleKey: rep}, nil
}

func (s *Service) generate() (*Report, error) {
	mnemonic, err := wallet.GenerateMnemonic(s.words)
	if err != nil {
		return nil, scanerr.WithCause(scanerr.ErrGeneral, err)
	}

	seed, err := s.seed(mnemonic)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	snap, err := s.scanner.Preview(seed)
	if err != nil {
		return nil, err
	}
	snap.Identity.Mnemonic = mnemonic

	if s.logger != nil {
		s.logger.Info("no key supplied; generated a new %d word wallet", s.words)
	}
	return &Report{Kind: wallet.KindNone, Generated: true, Wallet: snap}, nil
}

func (s *Service) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}
