package scan

import (
	"context"

	"github.com/mrz1836/hdscan/internal/crypto"
	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/wallet"
)

// WalletScanner runs discovery for a seed or checks a fixed address set.
// *discovery.Aggregator implements it.
type WalletScanner interface {
	Discover(ctx context.Context, seed *crypto.Secret) (*discovery.WalletSnapshot, error)
	Preview(seed *crypto.Secret) (*discovery.WalletSnapshot, error)
	Check(ctx context.Context, records []wallet.AddressRecord) ([]discovery.ScannedAddress, error)
}

// Logger is the interface for scan service logging.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
}
