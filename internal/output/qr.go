package output

import (
	"io"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	Level      qr.Level
	QuietZone  int
	HalfBlocks bool
}

// DefaultQRConfig returns compact terminal settings. Low error correction
// is enough for an address.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.L,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// RenderAddressQR draws a "bitcoin:" URI for address when w is a
// terminal. Nothing is written otherwise.
func RenderAddressQR(w io.Writer, address string, cfg QRConfig) {
	if address == "" || !IsTerminal(w) {
		return
	}

	qrterminal.GenerateWithConfig("bitcoin:"+address, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
}
