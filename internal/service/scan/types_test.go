package scan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/wallet"
)

func keyed(addr, wif string) discovery.ScannedAddress {
	return discovery.ScannedAddress{AddressRecord: wallet.AddressRecord{Address: addr, SigningKey: wif}}
}

func TestReport_Redacted(t *testing.T) {
	t.Parallel()

	rep := &Report{
		Kind: wallet.KindMnemonic,
		Wallet: &discovery.WalletSnapshot{
			Schemes: map[string]*discovery.SchemeResult{
				"bip84": {
					UsedAddresses: []discovery.ScannedAddress{keyed("a", "K1")},
					FreshReceive:  keyed("b", "K2"),
					FreshChange:   keyed("c", "K3"),
				},
			},
		},
	}

	red := rep.Redacted()
	data, err := json.Marshal(red)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"wif"`)
	assert.Equal(t, "b", red.Wallet.Schemes["bip84"].FreshReceive.Address)

	// The original is untouched.
	assert.Equal(t, "K1", rep.Wallet.Schemes["bip84"].UsedAddresses[0].SigningKey)
	assert.Equal(t, "K2", rep.Wallet.Schemes["bip84"].FreshReceive.SigningKey)
}

func TestReport_RedactedSingleKey(t *testing.T) {
	t.Parallel()

	found := keyed("x", "K9")
	rep := &Report{
		Kind: wallet.KindPrivateKey,
		SingleKey: &SingleKeyReport{
			Addresses: []discovery.ScannedAddress{found, keyed("y", "K9")},
			Found:     &found,
		},
	}

	red := rep.Redacted()
	data, err := json.Marshal(red)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "K9")
	assert.Equal(t, "K9", rep.SingleKey.Found.SigningKey)
	assert.Equal(t, "K9", rep.SingleKey.Addresses[1].SigningKey)
}

func TestReport_Totals(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Report{}).HasActivity())
	assert.Zero(t, (&Report{}).TotalBalance())

	rep := &Report{SingleKey: &SingleKeyReport{TotalBalance: 5, HasActivity: true}}
	assert.True(t, rep.HasActivity())
	assert.Equal(t, int64(5), rep.TotalBalance())
}
