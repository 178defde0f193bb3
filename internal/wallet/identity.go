package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrInvalidKey indicates the input is neither a mnemonic nor a WIF key.
var ErrInvalidKey = errors.New("input is neither a valid mnemonic nor a valid WIF private key")

// KeyKind tags the variant held by a KeyIdentifier.
type KeyKind int

// Key identifier variants.
const (
	// KindNone means no key material was supplied.
	KindNone KeyKind = iota
	// KindMnemonic is a BIP39 phrase.
	KindMnemonic
	// KindPrivateKey is a single WIF encoded private key.
	KindPrivateKey
)

// String returns the variant name.
func (k KeyKind) String() string {
	switch k {
	case KindMnemonic:
		return "mnemonic"
	case KindPrivateKey:
		return "private_key"
	default:
		return "none"
	}
}

// MarshalText encodes the kind as its name.
func (k KeyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind from its name.
func (k *KeyKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*k = KindNone
	case "mnemonic":
		*k = KindMnemonic
	case "private_key":
		*k = KindPrivateKey
	default:
		return fmt.Errorf("unknown key kind %q", string(text))
	}
	return nil
}

// KeyIdentifier is the parsed key input of one request. It is classified
// once at the entry boundary; callers switch on Kind.
type KeyIdentifier struct {
	kind     KeyKind
	mnemonic string
	wif      *btcutil.WIF
}

// ParseKeyIdentifier classifies raw user input. Empty input yields KindNone.
// Input that is neither a valid mnemonic nor a mainnet WIF returns
// ErrInvalidKey; for phrase-shaped input the typo list explains why.
func ParseKeyIdentifier(input string, net *chaincfg.Params) (KeyIdentifier, []TypoInfo, error) {
	if net == nil {
		net = &chaincfg.MainNetParams
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return KeyIdentifier{kind: KindNone}, nil, nil
	}

	if ValidateMnemonic(trimmed) == nil {
		return KeyIdentifier{kind: KindMnemonic, mnemonic: NormalizeMnemonicInput(trimmed)}, nil, nil
	}

	if !strings.ContainsAny(trimmed, " \t\n,") {
		if wif, err := btcutil.DecodeWIF(trimmed); err == nil && wif.IsForNet(net) {
			return KeyIdentifier{kind: KindPrivateKey, wif: wif}, nil, nil
		}
		return KeyIdentifier{}, nil, ErrInvalidKey
	}

	return KeyIdentifier{}, DetectTypos(trimmed), ErrInvalidKey
}

// MnemonicIdentifier wraps an already validated phrase.
func MnemonicIdentifier(mnemonic string) KeyIdentifier {
	return KeyIdentifier{kind: KindMnemonic, mnemonic: NormalizeMnemonicInput(mnemonic)}
}

// Kind returns the variant.
func (k KeyIdentifier) Kind() KeyKind {
	return k.kind
}

// Mnemonic returns the normalized phrase for KindMnemonic.
func (k KeyIdentifier) Mnemonic() string {
	return k.mnemonic
}

// WIF returns the decoded key for KindPrivateKey.
func (k KeyIdentifier) WIF() *btcutil.WIF {
	return k.wif
}

// String never includes key material so identifiers are safe to log.
func (k KeyIdentifier) String() string {
	return "KeyIdentifier(" + k.kind.String() + ")"
}

// SingleKeyRecords returns the Legacy, WrappedSegwit and NativeSegwit
// addresses of one private key. Paths are reported as index 0 of the
// receive chain, matching how HD wallets would place the key. A key flagged
// uncompressed only has a Legacy address.
func SingleKeyRecords(wif *btcutil.WIF, net *chaincfg.Params) ([]AddressRecord, error) {
	if net == nil {
		net = &chaincfg.MainNetParams
	}

	schemes := Schemes()
	if !wif.CompressPubKey {
		schemes = []Scheme{Legacy}
	}

	records := make([]AddressRecord, 0, len(schemes))
	for _, scheme := range schemes {
		rec, err := RecordForKey(scheme, wif.SerializePubKey(), net)
		if err != nil {
			return nil, err
		}
		rec.Chain = Receive
		rec.Path = scheme.Path(Receive, 0)
		rec.SigningKey = wif.String()
		records = append(records, *rec)
	}
	return records, nil
}
