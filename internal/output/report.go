package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/service/scan"
	"github.com/mrz1836/hdscan/internal/wallet"
)

// Report writes a scan report. Private keys are stripped unless the
// formatter was told to show them.
func (f *Formatter) Report(rep *scan.Report) error {
	if !f.showKeys {
		rep = rep.Redacted()
	}
	if f.IsJSON() {
		return writeJSON(f.writer, rep)
	}

	ew := &errWriter{w: f.writer}
	switch {
	case rep.Wallet != nil:
		f.walletText(ew, rep)
	case rep.SingleKey != nil:
		f.singleKeyText(ew, rep.SingleKey)
	}
	return ew.err
}

// Addresses writes derived address records.
func (f *Formatter) Addresses(records []wallet.AddressRecord) error {
	out := make([]wallet.AddressRecord, len(records))
	copy(out, records)
	if !f.showKeys {
		for i := range out {
			out[i].SigningKey = ""
		}
	}

	if f.IsJSON() {
		return writeJSON(f.writer, out)
	}

	headers := []string{"PATH", "ADDRESS"}
	if f.showKeys {
		headers = append(headers, "WIF")
	}
	t := NewTable(headers...)
	for _, rec := range out {
		row := []string{rec.Path, rec.Address}
		if f.showKeys {
			row = append(row, rec.SigningKey)
		}
		t.AddRow(row...)
	}
	return t.Render(f.writer)
}

func (f *Formatter) walletText(w *errWriter, rep *scan.Report) {
	snap := rep.Wallet

	if rep.Generated {
		w.printf("Generated a new wallet. Write down the recovery phrase and keep it offline:\n\n")
		w.printf("  %s\n\n", snap.Identity.Mnemonic)
	}

	schemes := make([]*discovery.SchemeResult, 0, len(snap.Schemes))
	for _, s := range wallet.Schemes() {
		if sr := snap.Scheme(s); sr != nil {
			schemes = append(schemes, sr)
		}
	}

	summary := NewTable("SCHEME", "ACCOUNT", "USED", "BALANCE (BTC)", "FRESH RECEIVE", "FRESH CHANGE").AlignRight(2, 3)
	for _, sr := range schemes {
		summary.AddRow(
			sr.Scheme.Name(),
			sr.AccountPath,
			strconv.Itoa(len(sr.UsedAddresses)),
			FormatBTC(sr.TotalBalance),
			sr.FreshReceive.Address,
			sr.FreshChange.Address,
		)
	}
	w.render(summary)

	for _, sr := range schemes {
		if sr.AccountXpub != "" {
			w.printf("%s %s\n", sr.Scheme.Name(), sr.AccountXpub)
		}
	}

	if snap.Offline {
		w.printf("\nNot checked against an indexer; a new wallet has no history.\n")
		return
	}

	w.printf("\nTotal balance:     %s\n", FormatAmount(snap.TotalBalance))
	w.printf("Addresses scanned: %d\n", snap.AddressesScanned)

	if !snap.HasActivity {
		w.printf("\nNo activity found on any derivation path.\n")
		return
	}

	used := NewTable("PATH", "ADDRESS", "TXS", "BALANCE (BTC)").AlignRight(2, 3).Indent("  ")
	for _, sr := range schemes {
		for _, a := range sr.UsedAddresses {
			used.AddRow(a.Path, a.Address, txCount(a), FormatBTC(a.TotalBalance()))
		}
	}
	w.printf("\nUsed addresses:\n")
	w.render(used)

	f.utxoText(w, snap.UTXOs)

	if snap.Sweep != nil {
		w.printf("\nSweep: %s", snap.Sweep.Status)
		if snap.Sweep.Destination != "" {
			w.printf(" to %s", snap.Sweep.Destination)
		}
		if snap.Sweep.Reason != "" {
			w.printf(" (%s)", snap.Sweep.Reason)
		}
		if snap.Sweep.Error != "" {
			w.printf(": %s", snap.Sweep.Error)
		}
		w.printf("\n")
	}
}

func (f *Formatter) singleKeyText(w *errWriter, sk *scan.SingleKeyReport) {
	t := NewTable("SCHEME", "ADDRESS", "TXS", "BALANCE (BTC)").AlignRight(2, 3)
	for _, a := range sk.Addresses {
		t.AddRow(a.Scheme.Name(), a.Address, txCount(a), FormatBTC(a.TotalBalance()))
	}
	w.render(t)

	w.printf("\nTotal balance: %s\n", FormatAmount(sk.TotalBalance))
	if sk.Found == nil {
		w.printf("No activity found for this key.\n")
		return
	}
	w.printf("Found:         %s (%s)\n", sk.Found.Address, sk.Found.Scheme.Name())
	if f.showKeys && sk.Found.SigningKey != "" {
		w.printf("WIF:           %s\n", sk.Found.SigningKey)
	}
	f.utxoText(w, sk.UTXOs)
}

func (f *Formatter) utxoText(w *errWriter, utxos []discovery.UTXO) {
	if len(utxos) == 0 {
		return
	}
	t := NewTable("OUTPOINT", "VALUE (BTC)", "HEIGHT", "PATH").AlignRight(1, 2).Indent("  ")
	for _, u := range utxos {
		height := "pending"
		if u.Height > 0 {
			height = strconv.FormatInt(u.Height, 10)
		}
		t.AddRow(fmt.Sprintf("%s:%d", u.TxID, u.Vout), FormatBTC(u.Value), height, u.Path)
	}
	w.printf("\nUnspent outputs:\n")
	w.render(t)
}

func txCount(a discovery.ScannedAddress) string {
	if a.UnconfirmedTxCount == 0 {
		return strconv.Itoa(a.TxCount)
	}
	return fmt.Sprintf("%d (%d pending)", a.TxCount, a.UnconfirmedTxCount)
}

// errWriter keeps the first write error so rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) render(t *Table) {
	if e.err != nil {
		return
	}
	e.err = t.Render(e.w)
}
