package scan

import (
	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/wallet"
)

// Report is the result of one scan request. Exactly one of Wallet and
// SingleKey is set.
type Report struct {
	// Kind is the kind of key material that was supplied.
	Kind wallet.KeyKind `json:"kind"`

	// Generated is true when no key was supplied and a new mnemonic was
	// created. The phrase is in Wallet.Identity.Mnemonic.
	Generated bool `json:"generated,omitempty"`

	Wallet    *discovery.WalletSnapshot `json:"wallet,omitempty"`
	SingleKey *SingleKeyReport          `json:"single_key,omitempty"`
}

// HasActivity reports whether any scanned address was used.
func (r *Report) HasActivity() bool {
	switch {
	case r.Wallet != nil:
		return r.Wallet.HasActivity
	case r.SingleKey != nil:
		return r.SingleKey.HasActivity
	default:
		return false
	}
}

// TotalBalance returns the balance found in satoshis.
func (r *Report) TotalBalance() int64 {
	switch {
	case r.Wallet != nil:
		return r.Wallet.TotalBalance
	case r.SingleKey != nil:
		return r.SingleKey.TotalBalance
	default:
		return 0
	}
}

// SingleKeyReport is the status of the scheme addresses of one private key.
type SingleKeyReport struct {
	Addresses []discovery.ScannedAddress `json:"addresses"`

	// Found is the first used address in scheme order, if any.
	Found *discovery.ScannedAddress `json:"found,omitempty"`

	TotalBalance int64            `json:"total_balance"`
	UTXOs        []discovery.UTXO `json:"utxos"`
	HasActivity  bool             `json:"has_activity"`
}

// Redacted returns a deep copy with every private key removed. Reports
// leave the process redacted unless key exposure is explicitly enabled.
func (r *Report) Redacted() *Report {
	out := *r

	if r.Wallet != nil {
		snap := *r.Wallet
		snap.Schemes = make(map[string]*discovery.SchemeResult, len(r.Wallet.Schemes))
		for name, sr := range r.Wallet.Schemes {
			c := *sr
			c.UsedAddresses = redactAll(sr.UsedAddresses)
			c.FreshReceive.SigningKey = ""
			c.FreshChange.SigningKey = ""
			snap.Schemes[name] = &c
		}
		out.Wallet = &snap
	}

	if r.SingleKey != nil {
		sk := *r.SingleKey
		sk.Addresses = redactAll(r.SingleKey.Addresses)
		if r.SingleKey.Found != nil {
			found := *r.SingleKey.Found
			found.SigningKey = ""
			sk.Found = &found
		}
		out.SingleKey = &sk
	}

	return &out
}

func redactAll(in []discovery.ScannedAddress) []discovery.ScannedAddress {
	if in == nil {
		return nil
	}
	out := make([]discovery.ScannedAddress, len(in))
	for i := range in {
		out[i] = in[i]
		out[i].SigningKey = ""
	}
	return out
}
