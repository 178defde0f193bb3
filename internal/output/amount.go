package output

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const btcDecimals = 8

// FormatBTC renders satoshis as a BTC amount with eight decimals.
func FormatBTC(sats int64) string {
	return decimal.New(sats, -btcDecimals).StringFixed(btcDecimals)
}

// FormatAmount renders satoshis as "0.00012000 BTC (12000 sat)".
func FormatAmount(sats int64) string {
	return fmt.Sprintf("%s BTC (%d sat)", FormatBTC(sats), sats)
}

// ParseBTC parses a BTC amount such as "0.001" into satoshis. Amounts with
// more than eight decimals are rejected.
func ParseBTC(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid BTC amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid BTC amount %q: negative", s)
	}

	sats := d.Shift(btcDecimals)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, fmt.Errorf("invalid BTC amount %q: more than %d decimals", s, btcDecimals)
	}
	return sats.IntPart(), nil
}
