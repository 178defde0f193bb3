package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mrz1836/hdscan/internal/electrum"
	"github.com/mrz1836/hdscan/internal/wallet"
)

// fakeDeriver derives synthetic records whose scripthash names the position.
type fakeDeriver struct {
	failAt int64
}

func fakeScriptHash(scheme wallet.Scheme, chain wallet.Chain, index uint32) string {
	return fmt.Sprintf("%s/%d/%d", scheme.Name(), chain, index)
}

func (d fakeDeriver) Derive(scheme wallet.Scheme, chain wallet.Chain, index uint32) (*wallet.AddressRecord, error) {
	if d.failAt > 0 && int64(index) == d.failAt {
		return nil, errors.New("derivation exploded")
	}
	return &wallet.AddressRecord{
		Scheme:     scheme,
		Chain:      chain,
		Index:      index,
		Path:       scheme.Path(chain, index),
		Address:    fmt.Sprintf("addr-%s-%d-%d", scheme.Name(), chain, index),
		ScriptHash: fakeScriptHash(scheme, chain, index),
	}, nil
}

type fakeAddr struct {
	balance electrum.Balance
	history []electrum.HistoryItem
	unspent []electrum.Unspent
}

func usedAddr(value int64, txid string) fakeAddr {
	return fakeAddr{
		balance: electrum.Balance{Confirmed: value},
		history: []electrum.HistoryItem{{Height: 800000, TxHash: txid}},
		unspent: []electrum.Unspent{{Height: 800000, TxHash: txid, TxPos: 0, Value: value}},
	}
}

// fakeIndexer serves fixed data per scripthash. Addresses in flip are
// unused on their first query and serve the flip data afterwards.
type fakeIndexer struct {
	mu      sync.Mutex
	data    map[string]fakeAddr
	flip    map[string]fakeAddr
	calls   map[string]map[string]int
	closed  int
	fail    func(method, scriptHash string, n int) error
	blockOn string
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		data:  make(map[string]fakeAddr),
		flip:  make(map[string]fakeAddr),
		calls: make(map[string]map[string]int),
	}
}

func (f *fakeIndexer) set(sh string, a fakeAddr) *fakeIndexer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[sh] = a
	return f
}

func (f *fakeIndexer) lookup(ctx context.Context, method, sh string) (fakeAddr, error) {
	f.mu.Lock()
	if f.calls[method] == nil {
		f.calls[method] = make(map[string]int)
	}
	f.calls[method][sh]++
	n := f.calls[method][sh]
	fail := f.fail
	block := f.blockOn != "" && f.blockOn == sh
	data := f.data[sh]
	if flipped, ok := f.flip[sh]; ok && n >= 2 {
		data = flipped
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return fakeAddr{}, ctx.Err()
	}
	if fail != nil {
		if err := fail(method, sh, n); err != nil {
			return fakeAddr{}, err
		}
	}
	return data, nil
}

func (f *fakeIndexer) GetBalance(ctx context.Context, sh string) (electrum.Balance, error) {
	a, err := f.lookup(ctx, "balance", sh)
	return a.balance, err
}

func (f *fakeIndexer) GetHistory(ctx context.Context, sh string) ([]electrum.HistoryItem, error) {
	a, err := f.lookup(ctx, "history", sh)
	return a.history, err
}

func (f *fakeIndexer) ListUnspent(ctx context.Context, sh string) ([]electrum.Unspent, error) {
	a, err := f.lookup(ctx, "unspent", sh)
	return a.unspent, err
}

func (f *fakeIndexer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeIndexer) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls[method] {
		total += n
	}
	return total
}

func (f *fakeIndexer) callsFor(method, sh string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method][sh]
}

func (f *fakeIndexer) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeIndexer) connector() Connector {
	return ConnectorFunc(func(context.Context) (Session, error) {
		return f, nil
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
