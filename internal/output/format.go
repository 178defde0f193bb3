// Package output renders scan reports and errors for the hdscan CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter writes values in one resolved format.
type Formatter struct {
	format   Format
	writer   io.Writer
	showKeys bool
}

// NewFormatter creates a formatter. FormatAuto is resolved against w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{
		format: DetectFormat(w, format),
		writer: w,
	}
}

// ShowPrivateKeys controls whether reports include WIF keys.
func (f *Formatter) ShowPrivateKeys(show bool) *Formatter {
	f.showKeys = show
	return f
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format {
	return f.format
}

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// IsJSON returns true if the formatter outputs JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Print writes v as indented JSON or as one line of text.
func (f *Formatter) Print(v any) error {
	if f.format == FormatJSON {
		return writeJSON(f.writer, v)
	}
	switch val := v.(type) {
	case string:
		_, err := fmt.Fprintln(f.writer, val)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.writer, val.String())
		return err
	default:
		_, err := fmt.Fprintf(f.writer, "%v\n", val)
		return err
	}
}

// Printf writes formatted text output.
func (f *Formatter) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(f.writer, format, args...)
	return err
}

// Println writes a line of text output.
func (f *Formatter) Println(args ...any) error {
	_, err := fmt.Fprintln(f.writer, args...)
	return err
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// DetectFormat determines the appropriate format based on context.
// Returns JSON for non-TTY output, text for TTY, unless explicitly overridden.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit == FormatText || explicit == FormatJSON {
		return explicit
	}
	if IsTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

// ParseFormat parses a format string. Unknown values are auto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}
