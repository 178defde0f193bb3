package output

import (
	"fmt"
	"io"
)

// Messenger prints short status lines, usually to stderr so stdout stays
// machine readable.
type Messenger struct {
	w     io.Writer
	color bool
}

// NewMessenger creates a messenger. Prefix symbols are only used when
// color is enabled.
func NewMessenger(w io.Writer, color bool) *Messenger {
	return &Messenger{w: w, color: color}
}

// Infof prints an informational line.
func (m *Messenger) Infof(format string, args ...any) {
	m.print("ℹ️  ", "", format, args...)
}

// Warnf prints a warning line.
func (m *Messenger) Warnf(format string, args ...any) {
	m.print("⚠️  ", "warning: ", format, args...)
}

// Successf prints a success line.
func (m *Messenger) Successf(format string, args ...any) {
	m.print("✅ ", "", format, args...)
}

func (m *Messenger) print(symbol, plain, format string, args ...any) {
	prefix := plain
	if m.color {
		prefix = symbol
	}
	_, _ = fmt.Fprintln(m.w, prefix+fmt.Sprintf(format, args...))
}

// ColorEnabled resolves a color setting ("auto", "always", "never") for w.
func ColorEnabled(setting string, w io.Writer) bool {
	switch setting {
	case "always":
		return true
	case "never":
		return false
	default:
		return IsTerminal(w)
	}
}
