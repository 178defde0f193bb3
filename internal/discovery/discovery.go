// Package discovery finds the used addresses, balance and next fresh
// address of every standard derivation branch of a wallet. Each
// (scheme, chain) branch is scanned by a gap-limit engine; the Aggregator
// runs all branches of a wallet concurrently over one indexer session and
// merges them into a WalletSnapshot.
package discovery

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/hdscan/internal/electrum"
	"github.com/mrz1836/hdscan/internal/sweep"
	"github.com/mrz1836/hdscan/internal/wallet"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultGapLimit is the standard HD wallet gap limit.
	// A branch converges after this many consecutive unused addresses.
	DefaultGapLimit = 20

	// DefaultBatchSize is the number of addresses queried as one window.
	DefaultBatchSize = 20

	// DefaultMaxVerifyRounds bounds how often the fresh address may turn
	// out used during verification before the branch fails.
	DefaultMaxVerifyRounds = 3

	// DefaultMaxRetries is the number of retries of a transient query failure.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first backoff delay between retries.
	DefaultRetryBaseDelay = 250 * time.Millisecond
)

// KeyDeriver derives the address record at a position of the wallet tree.
// *wallet.Deriver implements it.
type KeyDeriver interface {
	Derive(scheme wallet.Scheme, chain wallet.Chain, index uint32) (*wallet.AddressRecord, error)
}

// Indexer answers scripthash queries. Errors marked with
// indexer.WrapRetryable are retried; any other error fails the branch.
type Indexer interface {
	GetBalance(ctx context.Context, scriptHash string) (electrum.Balance, error)
	GetHistory(ctx context.Context, scriptHash string) ([]electrum.HistoryItem, error)
	ListUnspent(ctx context.Context, scriptHash string) ([]electrum.Unspent, error)
}

// Session is an indexer connection owned by one discovery run.
type Session interface {
	Indexer
	io.Closer
}

// Connector opens the session of one discovery run.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Logger is the interface for discovery logging.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// ChainState is the state of one branch engine.
type ChainState int

// Engine states.
const (
	StateScanning ChainState = iota
	StateConverged
	StateVerifying
	StateDone
	StateFailed
)

// String returns the state name.
func (s ChainState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateConverged:
		return "converged"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ChainState(%d)", int(s))
	}
}

// MarshalText encodes the state as its name.
func (s ChainState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state from its name.
func (s *ChainState) UnmarshalText(text []byte) error {
	for st := StateScanning; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown chain state %q", string(text))
}

// ScanWindow is the index range [Start, Start+Size) queried as one batch.
type ScanWindow struct {
	Start int64 `json:"start"`
	Size  int   `json:"size"`
}

// End returns the first index after the window.
func (w ScanWindow) End() int64 {
	return w.Start + int64(w.Size)
}

// UTXO is an unspent output of a used address.
type UTXO struct {
	TxID    string        `json:"txid"`
	Vout    uint32        `json:"vout"`
	Value   int64         `json:"value"`
	Height  int64         `json:"height"`
	Address string        `json:"address"`
	Path    string        `json:"path"`
	Scheme  wallet.Scheme `json:"scheme"`
}

// AddressStatus is what the indexer reports for one address. Balances are
// in satoshis; the unconfirmed part is a signed delta.
type AddressStatus struct {
	ConfirmedBalance   int64  `json:"confirmed_balance"`
	UnconfirmedBalance int64  `json:"unconfirmed_balance"`
	TxCount            int    `json:"tx_count"`
	ConfirmedTxCount   int    `json:"confirmed_tx_count"`
	UnconfirmedTxCount int    `json:"unconfirmed_tx_count"`
	UTXOs              []UTXO `json:"utxos,omitempty"`
}

// TotalBalance returns confirmed plus unconfirmed balance.
func (s AddressStatus) TotalBalance() int64 {
	return s.ConfirmedBalance + s.UnconfirmedBalance
}

// Used reports whether the address has ever seen activity.
func (s AddressStatus) Used() bool {
	return s.TxCount > 0 || s.TotalBalance() > 0
}

// ScannedAddress is an address record together with its queried status.
type ScannedAddress struct {
	wallet.AddressRecord
	AddressStatus
}

// ChainResult is the outcome of one branch engine.
type ChainResult struct {
	Scheme wallet.Scheme    `json:"scheme"`
	Chain  wallet.Chain     `json:"chain"`
	State  ChainState       `json:"state"`
	Used   []ScannedAddress `json:"used"`

	// LastUsedIndex is -1 for a branch without activity.
	LastUsedIndex int64 `json:"last_used_index"`

	// Fresh is the verified unused address at LastUsedIndex+1.
	Fresh ScannedAddress `json:"fresh"`

	// Scanned counts status queries, including verification.
	Scanned int `json:"scanned"`

	// ScannedThrough is the highest index queried.
	ScannedThrough int64 `json:"scanned_through"`
}

// Balance returns the sum of the used addresses' balances.
func (r *ChainResult) Balance() int64 {
	var total int64
	for _, a := range r.Used {
		total += a.TotalBalance()
	}
	return total
}

// SchemeResult merges the receive and change branches of one scheme.
type SchemeResult struct {
	Scheme           wallet.Scheme    `json:"scheme"`
	AccountPath      string           `json:"account_path"`
	AccountXpub      string           `json:"account_xpub,omitempty"`
	UsedAddresses    []ScannedAddress `json:"used_addresses"`
	FreshReceive     ScannedAddress   `json:"fresh_receive"`
	FreshChange      ScannedAddress   `json:"fresh_change"`
	TotalBalance     int64            `json:"total_balance"`
	UTXOs            []UTXO           `json:"utxos"`
	AddressesScanned int              `json:"addresses_scanned"`
}

// KeyIdentity describes the key a snapshot was built from. Mnemonic is
// only set for a phrase generated by this run.
type KeyIdentity struct {
	Kind     wallet.KeyKind `json:"kind"`
	Mnemonic string         `json:"mnemonic,omitempty"`
	Xpub     string         `json:"xpub,omitempty"`
	Ypub     string         `json:"ypub,omitempty"`
	Zpub     string         `json:"zpub,omitempty"`
}

// Fingerprint identifies the wallet by its account public keys.
func (k KeyIdentity) Fingerprint() string {
	return sweep.Fingerprint(k.Xpub, k.Ypub, k.Zpub)
}

// WalletSnapshot is the complete result of one discovery run. It holds no
// timestamps so identical indexer data yields identical JSON.
type WalletSnapshot struct {
	Identity         KeyIdentity              `json:"identity"`
	Schemes          map[string]*SchemeResult `json:"schemes"`
	TotalBalance     int64                    `json:"total_balance"`
	UTXOs            []UTXO                   `json:"utxos"`
	AddressesScanned int                      `json:"addresses_scanned"`
	HasActivity      bool                     `json:"has_activity"`
	Offline          bool                     `json:"offline,omitempty"`
	Sweep            *sweep.Outcome           `json:"sweep,omitempty"`
}

// Scheme returns the result of one scheme, or nil.
func (s *WalletSnapshot) Scheme(scheme wallet.Scheme) *SchemeResult {
	return s.Schemes[scheme.Name()]
}

// ProgressUpdate provides feedback during scanning.
type ProgressUpdate struct {
	// Phase is "connecting", "scanning", "verifying", "done" or "failed".
	Phase string

	Scheme wallet.Scheme
	Chain  wallet.Chain
	State  ChainState

	// Window is the batch just queried.
	Window ScanWindow

	// AddressesScanned is the number of addresses queried on this branch.
	AddressesScanned int

	// BalanceFound is the balance of the branch's used addresses so far.
	BalanceFound int64

	Message string
}

// ProgressCallback is called during scanning to report progress. Calls
// are serialized by the Aggregator.
type ProgressCallback func(ProgressUpdate)

// Config is the immutable configuration of an Aggregator.
type Config struct {
	// Schemes to scan. Default: wallet.Schemes().
	Schemes []wallet.Scheme

	// GapLimit is the number of consecutive unused addresses after the last
	// used one that ends a branch scan.
	GapLimit int

	// BatchSize is the window size.
	BatchSize int

	// MaxVerifyRounds bounds fresh address verification.
	MaxVerifyRounds int

	// MaxRetries is the number of retries of a transient query failure.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay.
	RetryBaseDelay time.Duration

	// Net selects address encoding. Default: mainnet.
	Net *chaincfg.Params
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Schemes:         wallet.Schemes(),
		GapLimit:        DefaultGapLimit,
		BatchSize:       DefaultBatchSize,
		MaxVerifyRounds: DefaultMaxVerifyRounds,
		MaxRetries:      DefaultMaxRetries,
		RetryBaseDelay:  DefaultRetryBaseDelay,
		Net:             &chaincfg.MainNetParams,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	invalid := func(field string, value any) error {
		return scanerr.WithDetails(scanerr.ErrConfigInvalid, map[string]string{field: fmt.Sprint(value)})
	}

	if len(c.Schemes) == 0 {
		return invalid("schemes", "none")
	}
	seen := make(map[wallet.Scheme]bool, len(c.Schemes))
	for _, s := range c.Schemes {
		if !s.IsValid() || seen[s] {
			return invalid("schemes", s)
		}
		seen[s] = true
	}
	if c.GapLimit < 1 {
		return invalid("gap_limit", c.GapLimit)
	}
	if c.BatchSize < 1 {
		return invalid("batch_size", c.BatchSize)
	}
	if c.MaxVerifyRounds < 1 {
		return invalid("verify_rounds", c.MaxVerifyRounds)
	}
	if c.MaxRetries < 0 {
		return invalid("max_retries", c.MaxRetries)
	}
	return nil
}

// canceled maps a context error to ErrScanCanceled.
func canceled(err error) error {
	return scanerr.WithCause(scanerr.ErrScanCanceled, err)
}
