package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrUnsupportedScheme indicates an unknown derivation scheme.
	ErrUnsupportedScheme = errors.New("unsupported derivation scheme")

	// ErrIndexOutOfRange indicates a non-hardened index at or above 2^31.
	ErrIndexOutOfRange = errors.New("address index out of range")

	// ErrEmptySeed indicates an empty seed was supplied.
	ErrEmptySeed = errors.New("empty seed")

	// ErrUncompressedSegwit indicates a segwit address was requested for an
	// uncompressed public key.
	ErrUncompressedSegwit = errors.New("segwit addresses require a compressed public key")
)

// MaxIndex is the highest non-hardened child index.
const MaxIndex = hdkeychain.HardenedKeyStart - 1

// AddressRecord is one derived address. It is a pure function of
// (seed, scheme, chain, index).
type AddressRecord struct {
	Scheme     Scheme `json:"scheme"`
	Chain      Chain  `json:"chain"`
	Index      uint32 `json:"index"`
	Path       string `json:"path"`
	Address    string `json:"address"`
	ScriptHash string `json:"script_hash"`
	PublicKey  string `json:"public_key"`

	// SigningKey is the WIF encoded private key. Output layers redact it
	// unless key exposure is explicitly enabled.
	SigningKey string `json:"wif,omitempty"`
}

// Deriver derives address records for one seed. Account and branch keys are
// derived once at construction so per-index derivation is a single step.
// A Deriver is safe for concurrent use.
type Deriver struct {
	net      *chaincfg.Params
	branches map[Scheme][2]*hdkeychain.ExtendedKey
}

// NewDeriver pre-derives the receive and change branch keys of every scheme.
func NewDeriver(seed []byte, net *chaincfg.Params) (*Deriver, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	if net == nil {
		net = &chaincfg.MainNetParams
	}

	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	d := &Deriver{
		net:      net,
		branches: make(map[Scheme][2]*hdkeychain.ExtendedKey, len(Schemes())),
	}

	for _, scheme := range Schemes() {
		account, err := deriveAccountKey(master, scheme)
		if err != nil {
			return nil, err
		}

		var pair [2]*hdkeychain.ExtendedKey
		for _, chain := range Chains() {
			branch, err := account.Derive(uint32(chain))
			if err != nil {
				return nil, fmt.Errorf("failed to derive %s %s branch: %w", scheme, chain, err)
			}

			// Force lazy pubkey computation so concurrent Derive calls don't race.
			if _, err := branch.ECPubKey(); err != nil {
				return nil, fmt.Errorf("failed to warm %s %s branch pubkey: %w", scheme, chain, err)
			}
			pair[chain] = branch
		}
		d.branches[scheme] = pair
	}

	return d, nil
}

// deriveAccountKey walks m / purpose' / coin_type' / 0'.
func deriveAccountKey(master *hdkeychain.ExtendedKey, scheme Scheme) (*hdkeychain.ExtendedKey, error) {
	purpose, err := master.Derive(hdkeychain.HardenedKeyStart + scheme.Purpose())
	if err != nil {
		return nil, fmt.Errorf("failed to derive purpose key: %w", err)
	}

	coin, err := purpose.Derive(hdkeychain.HardenedKeyStart + CoinTypeBTC)
	if err != nil {
		return nil, fmt.Errorf("failed to derive coin type key: %w", err)
	}

	account, err := coin.Derive(hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}

	return account, nil
}

// Derive returns the address record at scheme/chain/index.
func (d *Deriver) Derive(scheme Scheme, chain Chain, index uint32) (*AddressRecord, error) {
	pair, ok := d.branches[scheme]
	if !ok {
		return nil, ErrUnsupportedScheme
	}
	if chain != Receive && chain != Change {
		return nil, fmt.Errorf("unknown chain %d", chain)
	}
	if index > MaxIndex {
		return nil, ErrIndexOutOfRange
	}

	child, err := pair[chain].Derive(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive index %d: %w", index, err)
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key at index %d: %w", index, err)
	}

	rec, err := RecordForKey(scheme, priv.PubKey().SerializeCompressed(), d.net)
	if err != nil {
		return nil, err
	}

	wif, err := btcutil.NewWIF(priv, d.net, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WIF at index %d: %w", index, err)
	}

	rec.Chain = chain
	rec.Index = index
	rec.Path = scheme.Path(chain, index)
	rec.SigningKey = wif.String()

	return rec, nil
}

// RecordForKey encodes the scheme address of a serialized public key and
// fills in the address, script hash and public key fields of a record.
func RecordForKey(scheme Scheme, pubKey []byte, net *chaincfg.Params) (*AddressRecord, error) {
	addr, err := EncodeAddress(scheme, pubKey, net)
	if err != nil {
		return nil, err
	}

	scriptHash, err := ScriptHash(addr)
	if err != nil {
		return nil, err
	}

	return &AddressRecord{
		Scheme:     scheme,
		Address:    addr.EncodeAddress(),
		ScriptHash: scriptHash,
		PublicKey:  hex.EncodeToString(pubKey),
	}, nil
}

// EncodeAddress builds the scheme's address for a serialized public key.
// Segwit schemes only accept compressed keys.
func EncodeAddress(scheme Scheme, pubKey []byte, net *chaincfg.Params) (btcutil.Address, error) {
	if scheme != Legacy && len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return nil, ErrUncompressedSegwit
	}
	pkHash := btcutil.Hash160(pubKey)

	switch scheme {
	case Legacy:
		return btcutil.NewAddressPubKeyHash(pkHash, net)

	case WrappedSegwit:
		witness, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, net)
		if err != nil {
			return nil, err
		}
		redeem, err := txscript.PayToAddrScript(witness)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(redeem, net)

	case NativeSegwit:
		return btcutil.NewAddressWitnessPubKeyHash(pkHash, net)

	default:
		return nil, ErrUnsupportedScheme
	}
}

// ScriptHash returns the Electrum scripthash of an address: the SHA256 of its
// output script, hex encoded in reversed byte order.
func ScriptHash(addr btcutil.Address) (string, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("failed to build output script: %w", err)
	}
	return chainhash.HashH(script).String(), nil
}

// ScriptHashForAddress decodes an address string and returns its scripthash.
func ScriptHashForAddress(address string, net *chaincfg.Params) (string, error) {
	if net == nil {
		net = &chaincfg.MainNetParams
	}
	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return "", err
	}
	return ScriptHash(addr)
}
