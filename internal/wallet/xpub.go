package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"
)

// AccountPublicKeys holds the SLIP-132 encoded account extended public key
// of every scheme. They allow watch-only derivation without the seed.
type AccountPublicKeys struct {
	Xpub string `json:"xpub"`
	Ypub string `json:"ypub"`
	Zpub string `json:"zpub"`
}

// ForScheme returns the extended public key of one scheme.
func (k AccountPublicKeys) ForScheme(s Scheme) string {
	switch s {
	case WrappedSegwit:
		return k.Ypub
	case NativeSegwit:
		return k.Zpub
	default:
		return k.Xpub
	}
}

// DeriveAccountPublicKeys derives m/44'/0'/0', m/49'/0'/0' and m/84'/0'/0',
// neuters them, and serializes each with its scheme's version bytes.
func DeriveAccountPublicKeys(seed []byte) (AccountPublicKeys, error) {
	var keys AccountPublicKeys

	if len(seed) == 0 {
		return keys, ErrEmptySeed
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return keys, fmt.Errorf("failed to create master key: %w", err)
	}

	for _, scheme := range Schemes() {
		encoded, err := accountExtendedPublicKey(master, scheme)
		if err != nil {
			return keys, err
		}
		switch scheme {
		case Legacy:
			keys.Xpub = encoded
		case WrappedSegwit:
			keys.Ypub = encoded
		case NativeSegwit:
			keys.Zpub = encoded
		}
	}

	return keys, nil
}

func accountExtendedPublicKey(master *bip32.Key, scheme Scheme) (string, error) {
	key := master
	for _, child := range []uint32{scheme.Purpose(), CoinTypeBTC, 0} {
		next, err := key.NewChildKey(bip32.FirstHardenedChild + child)
		if err != nil {
			return "", fmt.Errorf("failed to derive %s account key: %w", scheme, err)
		}
		key = next
	}

	pub := key.PublicKey()
	version := scheme.PubKeyVersion()
	pub.Version = version[:]

	return pub.B58Serialize(), nil
}
