package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hdscan/internal/electrum"
	"github.com/mrz1836/hdscan/internal/indexer"
	"github.com/mrz1836/hdscan/internal/wallet"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// engine scans one (scheme, chain) branch.
//
// Windows of BatchSize addresses are queried concurrently starting at
// index 0. The branch converges once GapLimit consecutive indices past the
// last used one have been seen unused. The address after the last used one
// is then queried again; if activity raced in it is recorded as used and
// scanning resumes after it.
type engine struct {
	scheme  wallet.Scheme
	chain   wallet.Chain
	deriver KeyDeriver
	indexer Indexer
	cfg     Config
	retry   indexer.RetryConfig
	report  func(ProgressUpdate)
}

func newEngine(scheme wallet.Scheme, chain wallet.Chain, d KeyDeriver, idx Indexer, cfg Config, report func(ProgressUpdate)) *engine {
	if report == nil {
		report = func(ProgressUpdate) {}
	}
	return &engine{
		scheme:  scheme,
		chain:   chain,
		deriver: d,
		indexer: idx,
		cfg:     cfg,
		retry:   indexer.RetryConfigFor(cfg.MaxRetries, cfg.RetryBaseDelay),
		report:  report,
	}
}

// run drives the branch to StateDone or returns the error that failed it.
func (e *engine) run(ctx context.Context) (*ChainResult, error) {
	res := &ChainResult{
		Scheme:         e.scheme,
		Chain:          e.chain,
		State:          StateScanning,
		LastUsedIndex:  -1,
		ScannedThrough: -1,
	}

	start := int64(0)
	for rounds := 1; ; rounds++ {
		if err := e.scan(ctx, res, start); err != nil {
			return e.fail(res, err)
		}

		res.State = StateConverged
		e.progress(res, "verifying", ScanWindow{}, "")

		res.State = StateVerifying
		next := res.LastUsedIndex + 1
		candidate, err := e.query(ctx, next)
		res.Scanned++
		if err != nil {
			return e.fail(res, err)
		}

		if !candidate.Used() {
			res.Fresh = *candidate
			res.State = StateDone
			e.progress(res, "done", ScanWindow{}, "fresh address "+candidate.Path)
			return res, nil
		}

		res.Used = append(res.Used, *candidate)
		res.LastUsedIndex = next

		if rounds >= e.cfg.MaxVerifyRounds {
			err := fmt.Errorf("fresh address candidate kept gaining activity after %d verification rounds: %w", rounds, errVerifyRace)
			return e.fail(res, scanerr.WithDetails(scanerr.WithCause(scanerr.ErrIndexerQueryFailed, err), e.details(next)))
		}

		res.State = StateScanning
		start = next + 1
	}
}

var errVerifyRace = errors.New("verification race")

// scan queries windows from start until the branch converges.
func (e *engine) scan(ctx context.Context, res *ChainResult, start int64) error {
	gap := int64(e.cfg.GapLimit)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := ScanWindow{Start: start, Size: e.cfg.BatchSize}

		statuses, err := e.scanWindow(ctx, w)
		if err != nil {
			return err
		}
		res.Scanned += len(statuses)

		// Classify in index order so LastUsedIndex only moves forward.
		for i := range statuses {
			if statuses[i].Used() {
				res.Used = append(res.Used, statuses[i])
				res.LastUsedIndex = int64(statuses[i].Index)
			}
		}
		res.ScannedThrough = w.End() - 1

		e.progress(res, "scanning", w, "")

		if res.ScannedThrough-res.LastUsedIndex >= gap {
			return nil
		}
		start = w.End()
	}
}

// scanWindow derives every address of the window and queries them
// concurrently. It returns only after every query finished.
func (e *engine) scanWindow(ctx context.Context, w ScanWindow) ([]ScannedAddress, error) {
	out := make([]ScannedAddress, w.Size)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Size; i++ {
		index := w.Start + int64(i)
		g.Go(func() error {
			sa, err := e.query(gctx, index)
			if err != nil {
				return err
			}
			out[i] = *sa
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// query derives the address at index and fetches its status.
func (e *engine) query(ctx context.Context, index int64) (*ScannedAddress, error) {
	rec, err := e.derive(index)
	if err != nil {
		return nil, err
	}

	sa, err := fetchStatus(ctx, e.indexer, e.retry, rec)
	if err != nil {
		return nil, queryError(ctx, err, e.details(index))
	}
	return sa, nil
}

// fetchStatus queries the status of one address. Balance and history are
// fetched concurrently; unspent outputs only for used addresses.
func fetchStatus(ctx context.Context, idx Indexer, retry indexer.RetryConfig, rec *wallet.AddressRecord) (*ScannedAddress, error) {
	var (
		balance electrum.Balance
		history []electrum.HistoryItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = indexer.RetryWithConfig(gctx, retry, func() (electrum.Balance, error) {
			return idx.GetBalance(gctx, rec.ScriptHash)
		})
		return err
	})
	g.Go(func() error {
		var err error
		history, err = indexer.RetryWithConfig(gctx, retry, func() ([]electrum.HistoryItem, error) {
			return idx.GetHistory(gctx, rec.ScriptHash)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sa := &ScannedAddress{AddressRecord: *rec}
	sa.ConfirmedBalance = balance.Confirmed
	sa.UnconfirmedBalance = balance.Unconfirmed
	sa.TxCount = len(history)
	for _, h := range history {
		if h.Confirmed() {
			sa.ConfirmedTxCount++
		} else {
			sa.UnconfirmedTxCount++
		}
	}

	if !sa.Used() {
		return sa, nil
	}

	unspent, err := indexer.RetryWithConfig(ctx, retry, func() ([]electrum.Unspent, error) {
		return idx.ListUnspent(ctx, rec.ScriptHash)
	})
	if err != nil {
		return nil, err
	}

	sa.UTXOs = make([]UTXO, 0, len(unspent))
	for _, u := range unspent {
		sa.UTXOs = append(sa.UTXOs, UTXO{
			TxID:    u.TxHash,
			Vout:    u.TxPos,
			Value:   u.Value,
			Height:  u.Height,
			Address: rec.Address,
			Path:    rec.Path,
			Scheme:  rec.Scheme,
		})
	}
	sortUTXOs(sa.UTXOs)

	return sa, nil
}

// derive enforces the non-hardened index ceiling before deriving.
func (e *engine) derive(index int64) (*wallet.AddressRecord, error) {
	if index < 0 || index > int64(wallet.MaxIndex) {
		err := fmt.Errorf("index %d beyond the non-hardened range: %w", index, wallet.ErrIndexOutOfRange)
		return nil, scanerr.WithDetails(scanerr.WithCause(scanerr.ErrDerivationFailed, err), e.details(index))
	}

	rec, err := e.deriver.Derive(e.scheme, e.chain, uint32(index))
	if err != nil {
		return nil, scanerr.WithDetails(scanerr.WithCause(scanerr.ErrDerivationFailed, err), e.details(index))
	}
	return rec, nil
}

// queryError keeps context errors and structured errors as they are and
// wraps anything else as ErrIndexerQueryFailed.
func queryError(ctx context.Context, err error, details map[string]string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var se *scanerr.ScanError
	if errors.As(err, &se) {
		return err
	}
	return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrIndexerQueryFailed, err), details)
}

func (e *engine) fail(res *ChainResult, err error) (*ChainResult, error) {
	res.State = StateFailed
	e.progress(res, "failed", ScanWindow{}, err.Error())
	return res, err
}

func (e *engine) details(index int64) map[string]string {
	return map[string]string{
		"scheme": e.scheme.String(),
		"chain":  e.chain.String(),
		"index":  strconv.FormatInt(index, 10),
	}
}

func (e *engine) progress(res *ChainResult, phase string, w ScanWindow, msg string) {
	e.report(ProgressUpdate{
		Phase:            phase,
		Scheme:           e.scheme,
		Chain:            e.chain,
		State:            res.State,
		Window:           w,
		AddressesScanned: res.Scanned,
		BalanceFound:     res.Balance(),
		Message:          msg,
	})
}
