package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/hdscan/internal/crypto"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// maxKeyInput bounds key material read from stdin or a file.
const maxKeyInput = 4096

// promptKeyFn reads key material from the terminal. Replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var promptKeyFn = promptKey

// promptKey reads key material with hidden input.
func promptKey(w io.Writer) (string, error) {
	out(w, "Enter mnemonic or WIF private key (empty generates a new wallet): ")

	b, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() fits in int
	outln(w)
	if err != nil {
		return "", fmt.Errorf("reading key: %w", err)
	}
	defer crypto.Zero(b)

	return strings.TrimSpace(string(b)), nil
}

// readKey returns key material from, in order: --key-file, "-" (stdin),
// positional arguments, a hidden prompt when stdin is a terminal, or
// piped stdin.
func readKey(cmd *cobra.Command, args []string, keyFile string) (string, error) {
	switch {
	case keyFile != "":
		f, err := os.Open(keyFile) //nolint:gosec // path supplied by the user
		if err != nil {
			return "", scanerr.WithDetails(scanerr.WithCause(scanerr.ErrInvalidInput, err),
				map[string]string{"key_file": keyFile})
		}
		defer func() { _ = f.Close() }()
		return readKeyFrom(f)

	case len(args) == 1 && args[0] == "-":
		return readKeyFrom(cmd.InOrStdin())

	case len(args) > 0:
		if cc := GetCmdContext(cmd); cc != nil {
			cc.Messenger.Warnf("key material passed as arguments may be kept in shell history; prefer --key-file or stdin")
		}
		return strings.Join(args, " "), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() fits in int
		return promptKeyFn(cmd.ErrOrStderr())
	}
	return readKeyFrom(in)
}

// readKeyFrom reads up to maxKeyInput bytes. Line structure is kept so
// numbered or bulleted word lists are normalized by the key parser.
func readKeyFrom(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxKeyInput))
	if err != nil {
		return "", scanerr.WithCause(scanerr.ErrInvalidInput, err)
	}
	defer crypto.Zero(b)
	return strings.TrimSpace(string(b)), nil
}

func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
