package discovery

import (
	"context"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hdscan/internal/crypto"
	"github.com/mrz1836/hdscan/internal/indexer"
	"github.com/mrz1836/hdscan/internal/metrics"
	"github.com/mrz1836/hdscan/internal/sweep"
	"github.com/mrz1836/hdscan/internal/wallet"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Aggregator runs the branch engines of a wallet and merges their results.
// It holds no per-request state and is safe for concurrent use.
type Aggregator struct {
	cfg       Config
	connector Connector

	progress   ProgressCallback
	progressMu sync.Mutex
	trigger    *sweep.Trigger
	logger     Logger
	metrics    *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProgress installs a progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(a *Aggregator) { a.progress = cb }
}

// WithSweepTrigger evaluates trigger after every successful discovery.
func WithSweepTrigger(trigger *sweep.Trigger) Option {
	return func(a *Aggregator) { a.trigger = trigger }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMetrics sets the metrics sink. Default: metrics.Global.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator validates cfg and returns an aggregator using connector to
// open one indexer session per discovery.
func NewAggregator(cfg Config, connector Connector, opts ...Option) (*Aggregator, error) {
	if cfg.Net == nil {
		cfg.Net = &chaincfg.MainNetParams
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Schemes = append([]wallet.Scheme(nil), cfg.Schemes...)

	a := &Aggregator{
		cfg:       cfg,
		connector: connector,
		metrics:   metrics.Global,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns a copy of the configuration.
func (a *Aggregator) Config() Config {
	cfg := a.cfg
	cfg.Schemes = append([]wallet.Scheme(nil), a.cfg.Schemes...)
	return cfg
}

// Discover scans the wallet of a BIP39 seed. The seed is only read while
// deriving the branch keys; the caller keeps ownership of it.
func (a *Aggregator) Discover(ctx context.Context, seed *crypto.Secret) (*WalletSnapshot, error) {
	deriver, identity, err := a.deriverFor(seed)
	if err != nil {
		return nil, err
	}
	return a.Scan(ctx, deriver, identity)
}

// Scan runs every configured (scheme, chain) branch concurrently over one
// session and merges them. Either every branch completes and a snapshot is
// returned, or the first failure cancels the rest and is returned.
func (a *Aggregator) Scan(ctx context.Context, deriver KeyDeriver, identity KeyIdentity) (*WalletSnapshot, error) {
	if err := ctx.Err(); err != nil {
		a.metrics.RecordDiscoveryRun(metrics.OutcomeCanceled)
		return nil, canceled(err)
	}

	a.report(ProgressUpdate{Phase: "connecting", Message: "connecting to indexer"})

	session, err := a.connector.Connect(ctx)
	if err != nil {
		return nil, a.failed(ctx, err)
	}
	defer func() { _ = session.Close() }()

	chains := wallet.Chains()
	results := make([]*ChainResult, len(a.cfg.Schemes)*len(chains))

	g, gctx := errgroup.WithContext(ctx)
	for i, scheme := range a.cfg.Schemes {
		for j, chain := range chains {
			slot := i*len(chains) + j
			eng := newEngine(scheme, chain, deriver, session, a.cfg, a.report)
			g.Go(func() error {
				res, err := eng.run(gctx)
				if err != nil {
					return err
				}
				results[slot] = res
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, a.failed(ctx, err)
	}

	snap := a.merge(identity, results)
	a.metrics.AddAddressesScanned(snap.AddressesScanned)
	a.metrics.RecordDiscoveryRun(metrics.OutcomeSuccess)

	if a.logger != nil {
		a.logger.Info("discovery finished: %d addresses scanned, balance %d sat, %d utxos",
			snap.AddressesScanned, snap.TotalBalance, len(snap.UTXOs))
	}

	if a.trigger.Enabled() {
		snap.Sweep = a.trigger.Evaluate(ctx, identity.Fingerprint(), snap.TotalBalance, sweepInputs(snap.UTXOs))
	}

	return snap, nil
}

// Check queries a fixed set of addresses over one session and returns
// their statuses in input order.
func (a *Aggregator) Check(ctx context.Context, records []wallet.AddressRecord) ([]ScannedAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	session, err := a.connector.Connect(ctx)
	if err != nil {
		return nil, a.failed(ctx, err)
	}
	defer func() { _ = session.Close() }()

	retry := indexer.RetryConfigFor(a.cfg.MaxRetries, a.cfg.RetryBaseDelay)
	out := make([]ScannedAddress, len(records))

	g, gctx := errgroup.WithContext(ctx)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			sa, err := fetchStatus(gctx, session, retry, rec)
			if err != nil {
				return queryError(gctx, err, map[string]string{"address": rec.Address})
			}
			out[i] = *sa
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, a.failed(ctx, err)
	}

	a.metrics.AddAddressesScanned(len(records))
	return out, nil
}

// Preview derives index 0 of every branch without contacting an indexer.
// It is used for freshly generated wallets, which have no history.
func (a *Aggregator) Preview(seed *crypto.Secret) (*WalletSnapshot, error) {
	deriver, identity, err := a.deriverFor(seed)
	if err != nil {
		return nil, err
	}

	snap := &WalletSnapshot{
		Identity: identity,
		Schemes:  make(map[string]*SchemeResult, len(a.cfg.Schemes)),
		UTXOs:    []UTXO{},
		Offline:  true,
	}

	for _, scheme := range a.cfg.Schemes {
		sr := &SchemeResult{
			Scheme:        scheme,
			AccountPath:   scheme.AccountPath(),
			AccountXpub:   identity.xpubFor(scheme),
			UsedAddresses: []ScannedAddress{},
			UTXOs:         []UTXO{},
		}
		for _, chain := range wallet.Chains() {
			rec, err := deriver.Derive(scheme, chain, 0)
			if err != nil {
				return nil, scanerr.WithCause(scanerr.ErrDerivationFailed, err)
			}
			if chain == wallet.Receive {
				sr.FreshReceive = ScannedAddress{AddressRecord: *rec}
			} else {
				sr.FreshChange = ScannedAddress{AddressRecord: *rec}
			}
		}
		snap.Schemes[scheme.Name()] = sr
	}

	return snap, nil
}

func (a *Aggregator) deriverFor(seed *crypto.Secret) (*wallet.Deriver, KeyIdentity, error) {
	identity := KeyIdentity{Kind: wallet.KindMnemonic}

	var deriver *wallet.Deriver
	err := seed.Use(func(b []byte) error {
		var err error
		deriver, err = wallet.NewDeriver(b, a.cfg.Net)
		if err != nil {
			return err
		}

		keys, err := wallet.DeriveAccountPublicKeys(b)
		if err != nil {
			return err
		}
		identity.Xpub, identity.Ypub, identity.Zpub = keys.Xpub, keys.Ypub, keys.Zpub
		return nil
	})
	if err != nil {
		return nil, identity, scanerr.WithCause(scanerr.ErrDerivationFailed, err)
	}
	return deriver, identity, nil
}

func (k KeyIdentity) xpubFor(s wallet.Scheme) string {
	return wallet.AccountPublicKeys{Xpub: k.Xpub, Ypub: k.Ypub, Zpub: k.Zpub}.ForScheme(s)
}

// failed classifies a run error and records it.
func (a *Aggregator) failed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.metrics.RecordDiscoveryRun(metrics.OutcomeCanceled)
		return canceled(ctxErr)
	}

	a.metrics.RecordDiscoveryRun(metrics.OutcomeFailure)
	if a.logger != nil {
		a.logger.Error("discovery failed: %v", err)
	}
	return err
}

// report serializes progress callbacks from the concurrent engines.
func (a *Aggregator) report(u ProgressUpdate) {
	if a.progress == nil {
		return
	}
	a.progressMu.Lock()
	defer a.progressMu.Unlock()
	a.progress(u)
}

// merge builds the snapshot from completed branch results.
func (a *Aggregator) merge(identity KeyIdentity, results []*ChainResult) *WalletSnapshot {
	snap := &WalletSnapshot{
		Identity: identity,
		Schemes:  make(map[string]*SchemeResult, len(a.cfg.Schemes)),
		UTXOs:    []UTXO{},
	}

	for _, res := range results {
		sr, ok := snap.Schemes[res.Scheme.Name()]
		if !ok {
			sr = &SchemeResult{
				Scheme:        res.Scheme,
				AccountPath:   res.Scheme.AccountPath(),
				AccountXpub:   identity.xpubFor(res.Scheme),
				UsedAddresses: []ScannedAddress{},
				UTXOs:         []UTXO{},
			}
			snap.Schemes[res.Scheme.Name()] = sr
		}

		if res.Chain == wallet.Receive {
			sr.FreshReceive = res.Fresh
		} else {
			sr.FreshChange = res.Fresh
		}

		for _, used := range res.Used {
			sr.UsedAddresses = append(sr.UsedAddresses, used)
			sr.TotalBalance += used.TotalBalance()
			sr.UTXOs = append(sr.UTXOs, used.UTXOs...)
		}
		sr.AddressesScanned += res.Scanned
	}

	for _, sr := range snap.Schemes {
		sort.SliceStable(sr.UsedAddresses, func(i, j int) bool {
			x, y := sr.UsedAddresses[i], sr.UsedAddresses[j]
			if x.Chain != y.Chain {
				return x.Chain < y.Chain
			}
			return x.Index < y.Index
		})
		sortUTXOs(sr.UTXOs)

		snap.TotalBalance += sr.TotalBalance
		snap.UTXOs = append(snap.UTXOs, sr.UTXOs...)
		snap.AddressesScanned += sr.AddressesScanned
		if len(sr.UsedAddresses) > 0 {
			snap.HasActivity = true
		}
	}
	sortUTXOs(snap.UTXOs)

	return snap
}

func sortUTXOs(utxos []UTXO) {
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].TxID != utxos[j].TxID {
			return utxos[i].TxID < utxos[j].TxID
		}
		return utxos[i].Vout < utxos[j].Vout
	})
}

func sweepInputs(utxos []UTXO) []sweep.Input {
	inputs := make([]sweep.Input, len(utxos))
	for i, u := range utxos {
		inputs[i] = sweep.Input{
			TxID:    u.TxID,
			Vout:    u.Vout,
			Value:   u.Value,
			Address: u.Address,
			Path:    u.Path,
		}
	}
	return inputs
}
