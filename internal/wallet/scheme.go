package wallet

import (
	"fmt"
	"strings"
)

// Scheme is a standard single-signature derivation scheme. Each scheme fixes
// a BIP44-style account path and an address encoding.
type Scheme int

// Supported derivation schemes.
const (
	// Legacy is BIP44 pay-to-pubkey-hash (1...).
	Legacy Scheme = iota
	// WrappedSegwit is BIP49 P2WPKH nested in P2SH (3...).
	WrappedSegwit
	// NativeSegwit is BIP84 bech32 P2WPKH (bc1q...).
	NativeSegwit
)

// Chain is the sub-branch of a scheme's account.
type Chain uint32

// Account branches.
const (
	// Receive is the external chain handed out to payers.
	Receive Chain = 0
	// Change is the internal chain used for change outputs.
	Change Chain = 1
)

// CoinTypeBTC is the BIP44 coin type for Bitcoin mainnet.
const CoinTypeBTC uint32 = 0

// SLIP-132 extended public key versions.
//
//nolint:gochecknoglobals // Fixed version byte table
var (
	versionXpub = [4]byte{0x04, 0x88, 0xb2, 0x1e}
	versionYpub = [4]byte{0x04, 0x9d, 0x7c, 0xb2}
	versionZpub = [4]byte{0x04, 0xb2, 0x47, 0x46}
)

// Schemes returns every scheme scanned by a discovery run, in report order.
func Schemes() []Scheme {
	return []Scheme{Legacy, WrappedSegwit, NativeSegwit}
}

// Chains returns both account branches, receive first.
func Chains() []Chain {
	return []Chain{Receive, Change}
}

// Purpose returns the BIP43 purpose field of the scheme.
func (s Scheme) Purpose() uint32 {
	switch s {
	case Legacy:
		return 44
	case WrappedSegwit:
		return 49
	case NativeSegwit:
		return 84
	default:
		return 0
	}
}

// AccountPath returns the account level path prefix, e.g. m/84'/0'/0'.
func (s Scheme) AccountPath() string {
	return fmt.Sprintf("m/%d'/%d'/0'", s.Purpose(), CoinTypeBTC)
}

// Path returns the full derivation path of one address.
func (s Scheme) Path(chain Chain, index uint32) string {
	return fmt.Sprintf("%s/%d/%d", s.AccountPath(), chain, index)
}

// Name returns the short identifier used as a JSON key (bip44, bip49, bip84).
func (s Scheme) Name() string {
	return fmt.Sprintf("bip%d", s.Purpose())
}

// String returns the human readable scheme name.
func (s Scheme) String() string {
	switch s {
	case Legacy:
		return "Legacy"
	case WrappedSegwit:
		return "WrappedSegwit"
	case NativeSegwit:
		return "NativeSegwit"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// IsValid reports whether s is one of the supported schemes.
func (s Scheme) IsValid() bool {
	return s >= Legacy && s <= NativeSegwit
}

// PubKeyVersion returns the SLIP-132 version bytes of the scheme's account
// extended public key (xpub, ypub or zpub).
func (s Scheme) PubKeyVersion() [4]byte {
	switch s {
	case WrappedSegwit:
		return versionYpub
	case NativeSegwit:
		return versionZpub
	default:
		return versionXpub
	}
}

// MarshalText encodes the scheme as its short name.
func (s Scheme) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown scheme %d", int(s))
	}
	return []byte(s.Name()), nil
}

// UnmarshalText decodes a scheme from its short or long name.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, ok := ParseScheme(string(text))
	if !ok {
		return fmt.Errorf("unknown scheme %q", string(text))
	}
	*s = parsed
	return nil
}

// ParseScheme parses a scheme from "bip44", "legacy", "p2pkh" and friends.
func ParseScheme(s string) (Scheme, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bip44", "legacy", "p2pkh":
		return Legacy, true
	case "bip49", "wrappedsegwit", "p2sh-p2wpkh":
		return WrappedSegwit, true
	case "bip84", "nativesegwit", "p2wpkh":
		return NativeSegwit, true
	default:
		return 0, false
	}
}

// String returns "receive" or "change".
func (c Chain) String() string {
	if c == Change {
		return "change"
	}
	return "receive"
}

// MarshalText encodes the chain as its name.
func (c Chain) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a chain from its name or number.
func (c *Chain) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "receive", "external", "0":
		*c = Receive
	case "change", "internal", "1":
		*c = Change
	default:
		return fmt.Errorf("unknown chain %q", string(text))
	}
	return nil
}
