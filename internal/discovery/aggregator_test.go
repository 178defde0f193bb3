package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hdscan/internal/crypto"
	"github.com/mrz1836/hdscan/internal/metrics"
	"github.com/mrz1836/hdscan/internal/sweep"
	"github.com/mrz1836/hdscan/internal/wallet"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestAggregator(t *testing.T, idx *fakeIndexer, opts ...Option) *Aggregator {
	t.Helper()
	opts = append([]Option{WithMetrics(metrics.New()), WithLogger(nopLogger{})}, opts...)
	a, err := NewAggregator(testConfig(), idx.connector(), opts...)
	require.NoError(t, err)
	return a
}

func testSeed(t *testing.T) *crypto.Secret {
	t.Helper()
	seed, err := wallet.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)
	s := crypto.SecretFromSlice(seed)
	t.Cleanup(s.Wipe)
	return s
}

// activeWallet has activity on three branches of two schemes.
func activeWallet() *fakeIndexer {
	idx := newFakeIndexer()
	idx.set(fakeScriptHash(wallet.NativeSegwit, wallet.Receive, 0), usedAddr(5000, "bb"))
	idx.set(fakeScriptHash(wallet.NativeSegwit, wallet.Receive, 1), usedAddr(0, "cc"))
	idx.set(fakeScriptHash(wallet.NativeSegwit, wallet.Change, 0), usedAddr(2500, "aa"))
	idx.set(fakeScriptHash(wallet.Legacy, wallet.Receive, 3), usedAddr(1200, "dd"))
	return idx
}

func TestAggregator_Scan(t *testing.T) {
	t.Parallel()

	idx := activeWallet()
	a := newTestAggregator(t, idx)

	snap, err := a.Scan(context.Background(), fakeDeriver{}, KeyIdentity{Kind: wallet.KindMnemonic})
	require.NoError(t, err)

	assert.True(t, snap.HasActivity)
	assert.Len(t, snap.Schemes, 3)
	assert.Equal(t, 1, idx.closeCount())

	native := snap.Scheme(wallet.NativeSegwit)
	require.NotNil(t, native)
	assert.Equal(t, int64(7500), native.TotalBalance)
	require.Len(t, native.UsedAddresses, 3)
	assert.Equal(t, wallet.Receive, native.UsedAddresses[0].Chain)
	assert.Equal(t, uint32(1), native.UsedAddresses[1].Index)
	assert.Equal(t, wallet.Change, native.UsedAddresses[2].Chain)
	assert.Equal(t, uint32(2), native.FreshReceive.Index)
	assert.Equal(t, uint32(1), native.FreshChange.Index)
	assert.Equal(t, "m/84'/0'/0'", native.AccountPath)

	legacy := snap.Scheme(wallet.Legacy)
	require.NotNil(t, legacy)
	assert.Equal(t, int64(1200), legacy.TotalBalance)
	assert.Equal(t, uint32(4), legacy.FreshReceive.Index)
	assert.Equal(t, uint32(0), legacy.FreshChange.Index)

	wrapped := snap.Scheme(wallet.WrappedSegwit)
	require.NotNil(t, wrapped)
	assert.Empty(t, wrapped.UsedAddresses)
	assert.Zero(t, wrapped.TotalBalance)

	// Additivity: totals are sums over used addresses only.
	var sum int64
	for _, sr := range snap.Schemes {
		var schemeSum int64
		for _, u := range sr.UsedAddresses {
			schemeSum += u.TotalBalance()
		}
		assert.Equal(t, schemeSum, sr.TotalBalance)
		sum += sr.TotalBalance
	}
	assert.Equal(t, sum, snap.TotalBalance)
	assert.Equal(t, int64(8700), snap.TotalBalance)

	// UTXOs are the union ordered by (txid, vout).
	require.Len(t, snap.UTXOs, 4)
	ids := []string{snap.UTXOs[0].TxID, snap.UTXOs[1].TxID, snap.UTXOs[2].TxID, snap.UTXOs[3].TxID}
	assert.Equal(t, []string{"aa", "bb", "cc", "dd"}, ids)

	perScheme := 0
	for _, sr := range snap.Schemes {
		perScheme += sr.AddressesScanned
	}
	assert.Equal(t, perScheme, snap.AddressesScanned)
}

func TestAggregator_EmptyWallet(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	a := newTestAggregator(t, idx)

	snap, err := a.Scan(context.Background(), fakeDeriver{}, KeyIdentity{Kind: wallet.KindMnemonic})
	require.NoError(t, err)

	assert.False(t, snap.HasActivity)
	assert.Zero(t, snap.TotalBalance)
	assert.Empty(t, snap.UTXOs)
	// One window plus verification per branch.
	assert.Equal(t, 6*(DefaultBatchSize+1), snap.AddressesScanned)

	for _, sr := range snap.Schemes {
		assert.Empty(t, sr.UsedAddresses)
		assert.Equal(t, uint32(0), sr.FreshReceive.Index)
		assert.Equal(t, wallet.Receive, sr.FreshReceive.Chain)
		assert.Equal(t, uint32(0), sr.FreshChange.Index)
		assert.Equal(t, wallet.Change, sr.FreshChange.Chain)
	}
	assert.Zero(t, idx.callCount("unspent"))
}

func TestAggregator_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestAggregator(t, activeWallet())
	identity := KeyIdentity{Kind: wallet.KindMnemonic, Zpub: "zpub"}

	first, err := a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)
	second, err := a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestAggregator_AllOrNothing(t *testing.T) {
	t.Parallel()

	idx := activeWallet()
	failing := fakeScriptHash(wallet.WrappedSegwit, wallet.Change, 5)
	idx.fail = func(_, sh string, _ int) error {
		if sh == failing {
			return scanerr.WithCause(scanerr.ErrIndexerQueryFailed, errors.New("history too large"))
		}
		return nil
	}
	a := newTestAggregator(t, idx)

	snap, err := a.Scan(context.Background(), fakeDeriver{}, KeyIdentity{})
	require.ErrorIs(t, err, scanerr.ErrIndexerQueryFailed)
	assert.Nil(t, snap)
	assert.Equal(t, 1, idx.closeCount())
}

func TestAggregator_ConnectFailure(t *testing.T) {
	t.Parallel()

	connector := ConnectorFunc(func(context.Context) (Session, error) {
		return nil, scanerr.ErrAllEndpointsUnavailable
	})
	a, err := NewAggregator(testConfig(), connector, WithMetrics(metrics.New()))
	require.NoError(t, err)

	_, err = a.Scan(context.Background(), fakeDeriver{}, KeyIdentity{})
	require.ErrorIs(t, err, scanerr.ErrAllEndpointsUnavailable)
	assert.Equal(t, scanerr.ExitUnavailable, scanerr.ExitCode(err))
}

func TestAggregator_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	called := false
	connector := ConnectorFunc(func(context.Context) (Session, error) {
		called = true
		return newFakeIndexer(), nil
	})
	a, err := NewAggregator(testConfig(), connector, WithMetrics(metrics.New()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Scan(ctx, fakeDeriver{}, KeyIdentity{})
	require.ErrorIs(t, err, scanerr.ErrScanCanceled)
	assert.False(t, called)
}

func TestAggregator_CanceledMidRun(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	idx.blockOn = fakeScriptHash(wallet.Legacy, wallet.Receive, 0)
	a := newTestAggregator(t, idx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for idx.callsFor("balance", idx.blockOn) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	snap, err := a.Scan(ctx, fakeDeriver{}, KeyIdentity{})
	require.ErrorIs(t, err, scanerr.ErrScanCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, snap)
	assert.Equal(t, 1, idx.closeCount())
}

func TestAggregator_ProgressSerialized(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		inside  bool
		overlap bool
		phases  = map[string]int{}
	)
	cb := func(u ProgressUpdate) {
		mu.Lock()
		if inside {
			overlap = true
		}
		inside = true
		phases[u.Phase]++
		mu.Unlock()

		time.Sleep(50 * time.Microsecond)

		mu.Lock()
		inside = false
		mu.Unlock()
	}

	a := newTestAggregator(t, activeWallet(), WithProgress(cb))
	_, err := a.Scan(context.Background(), fakeDeriver{}, KeyIdentity{})
	require.NoError(t, err)

	assert.False(t, overlap)
	assert.Equal(t, 1, phases["connecting"])
	assert.Equal(t, 6, phases["done"])
	assert.Equal(t, 6, phases["verifying"])
}

type capturingHook struct {
	mu   sync.Mutex
	reqs []sweep.Request
}

func (h *capturingHook) Submit(_ context.Context, req sweep.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return nil
}

func TestAggregator_SweepTrigger(t *testing.T) {
	t.Parallel()

	hook := &capturingHook{}
	trigger := sweep.NewTrigger(sweep.Config{Enabled: true, Threshold: 1000, Destination: "bc1qdest"},
		hook, sweep.NewGuard(), nil, metrics.New())
	a := newTestAggregator(t, activeWallet(), WithSweepTrigger(trigger))
	identity := KeyIdentity{Kind: wallet.KindMnemonic, Xpub: "x", Ypub: "y", Zpub: "z"}

	snap, err := a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)
	require.NotNil(t, snap.Sweep)
	assert.Equal(t, sweep.StatusSubmitted, snap.Sweep.Status)

	require.Len(t, hook.reqs, 1)
	assert.Equal(t, snap.TotalBalance, hook.reqs[0].TotalBalance)
	assert.Len(t, hook.reqs[0].UTXOs, len(snap.UTXOs))

	// The same wallet and UTXO set is not submitted twice.
	snap, err = a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)
	assert.Equal(t, sweep.StatusDuplicate, snap.Sweep.Status)
	assert.Len(t, hook.reqs, 1)
}

// Only the per-run sweep outcome may differ between repeated runs.
func TestAggregator_SweepIdempotence(t *testing.T) {
	t.Parallel()

	trigger := sweep.NewTrigger(sweep.Config{Enabled: true, Threshold: 1000, Destination: "bc1qdest"},
		&capturingHook{}, sweep.NewGuard(), nil, metrics.New())
	a := newTestAggregator(t, activeWallet(), WithSweepTrigger(trigger))
	identity := KeyIdentity{Kind: wallet.KindMnemonic, Zpub: "zpub"}

	first, err := a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)
	second, err := a.Scan(context.Background(), fakeDeriver{}, identity)
	require.NoError(t, err)

	require.NotNil(t, first.Sweep)
	require.NotNil(t, second.Sweep)
	assert.NotEqual(t, first.Sweep.Status, second.Sweep.Status)

	first.Sweep, second.Sweep = nil, nil
	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestAggregator_NoSweepWithoutTrigger(t *testing.T) {
	t.Parallel()

	snap, err := newTestAggregator(t, activeWallet()).Scan(context.Background(), fakeDeriver{}, KeyIdentity{})
	require.NoError(t, err)
	assert.Nil(t, snap.Sweep)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"sweep"`)
}

func TestAggregator_DiscoverSeed(t *testing.T) {
	t.Parallel()

	d, err := wallet.NewDeriver(mustSeed(t), nil)
	require.NoError(t, err)
	first, err := d.Derive(wallet.NativeSegwit, wallet.Receive, 0)
	require.NoError(t, err)

	idx := newFakeIndexer()
	idx.set(first.ScriptHash, usedAddr(10000, "ee"))
	a := newTestAggregator(t, idx)

	seed := testSeed(t)
	snap, err := a.Discover(context.Background(), seed)
	require.NoError(t, err)

	assert.Equal(t, wallet.KindMnemonic, snap.Identity.Kind)
	assert.Empty(t, snap.Identity.Mnemonic)
	assert.Contains(t, snap.Identity.Zpub, "zpub")
	assert.Contains(t, snap.Identity.Xpub, "xpub")

	native := snap.Scheme(wallet.NativeSegwit)
	require.Len(t, native.UsedAddresses, 1)
	assert.Equal(t, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", native.UsedAddresses[0].Address)
	assert.Equal(t, "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g", native.FreshReceive.Address)
	assert.Equal(t, "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el", native.FreshChange.Address)
	assert.Equal(t, snap.Identity.Zpub, native.AccountXpub)
	assert.Equal(t, int64(10000), snap.TotalBalance)

	// The caller still owns the seed.
	assert.Equal(t, 64, seed.Len())
}

func TestAggregator_DiscoverWipedSeed(t *testing.T) {
	t.Parallel()

	seed := testSeed(t)
	seed.Wipe()

	_, err := newTestAggregator(t, newFakeIndexer()).Discover(context.Background(), seed)
	require.ErrorIs(t, err, scanerr.ErrDerivationFailed)
}

func TestAggregator_Preview(t *testing.T) {
	t.Parallel()

	idx := newFakeIndexer()
	snap, err := newTestAggregator(t, idx).Preview(testSeed(t))
	require.NoError(t, err)

	assert.True(t, snap.Offline)
	assert.False(t, snap.HasActivity)
	assert.Len(t, snap.Schemes, 3)
	assert.Equal(t, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA", snap.Scheme(wallet.Legacy).FreshReceive.Address)
	assert.Equal(t, "37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf", snap.Scheme(wallet.WrappedSegwit).FreshReceive.Address)
	assert.Equal(t, "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el", snap.Scheme(wallet.NativeSegwit).FreshChange.Address)
	assert.Contains(t, snap.Scheme(wallet.WrappedSegwit).AccountXpub, "ypub")

	// No indexer contact.
	assert.Zero(t, idx.callCount("balance"))
	assert.Zero(t, idx.closeCount())
}

func mustSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := wallet.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)
	return seed
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no schemes", func(c *Config) { c.Schemes = nil }, "schemes"},
		{"duplicate scheme", func(c *Config) { c.Schemes = []wallet.Scheme{wallet.Legacy, wallet.Legacy} }, "schemes"},
		{"unknown scheme", func(c *Config) { c.Schemes = []wallet.Scheme{wallet.Scheme(7)} }, "schemes"},
		{"zero gap", func(c *Config) { c.GapLimit = 0 }, "gap_limit"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"zero verify rounds", func(c *Config) { c.MaxVerifyRounds = 0 }, "verify_rounds"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, scanerr.ErrConfigInvalid)
			var se *scanerr.ScanError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Details, tc.field)
		})
	}
}

func TestNewAggregator_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GapLimit = 0
	_, err := NewAggregator(cfg, newFakeIndexer().connector())
	require.ErrorIs(t, err, scanerr.ErrConfigInvalid)
}

func TestAggregator_Check(t *testing.T) {
	t.Parallel()

	records := make([]wallet.AddressRecord, 0, 3)
	for _, s := range wallet.Schemes() {
		rec, err := fakeDeriver{}.Derive(s, wallet.Receive, 0)
		require.NoError(t, err)
		records = append(records, *rec)
	}

	idx := newFakeIndexer()
	idx.set(records[1].ScriptHash, usedAddr(4200, "ff"))
	a := newTestAggregator(t, idx)

	out, err := a.Check(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.False(t, out[0].Used())
	assert.True(t, out[1].Used())
	assert.Equal(t, wallet.WrappedSegwit, out[1].Scheme)
	assert.Equal(t, int64(4200), out[1].TotalBalance())
	require.Len(t, out[1].UTXOs, 1)
	assert.False(t, out[2].Used())
	assert.Equal(t, 1, idx.closeCount())
}

func TestAggregator_CheckFailure(t *testing.T) {
	t.Parallel()

	rec, err := fakeDeriver{}.Derive(wallet.Legacy, wallet.Receive, 0)
	require.NoError(t, err)

	idx := newFakeIndexer()
	idx.fail = func(string, string, int) error { return errors.New("bad response") }
	a := newTestAggregator(t, idx)

	_, err = a.Check(context.Background(), []wallet.AddressRecord{*rec})
	require.ErrorIs(t, err, scanerr.ErrIndexerQueryFailed)
	assert.Equal(t, 1, idx.closeCount())
}
