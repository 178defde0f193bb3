package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hdscan/internal/output"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

func newKeyCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	var stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, &CommandContext{Messenger: output.NewMessenger(&stderr, false)})
	return cmd, &stderr
}

func TestReadKeyFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "single line", input: "abandon about\n", want: "abandon about"},
		{name: "one word per line", input: "abandon\nabandon\r\nabout\n", want: "abandon\nabandon\r\nabout"},
		{name: "surrounding whitespace", input: "  abandon about \n", want: "abandon about"},
		{name: "wif", input: "KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d\n", want: "KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d"},
		{name: "empty", input: "", want: ""},
		{name: "blank lines", input: "\n\n", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := readKeyFrom(strings.NewReader(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadKeyFrom_Bounded(t *testing.T) {
	t.Parallel()

	got, err := readKeyFrom(strings.NewReader(strings.Repeat("a", maxKeyInput) + "overflow"))
	require.NoError(t, err)
	assert.Len(t, got, maxKeyInput)
}

func TestReadKey_Sources(t *testing.T) {
	t.Parallel()

	t.Run("key file wins", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "seed.txt")
		require.NoError(t, os.WriteFile(path, []byte(testMnemonic+"\n"), 0o600))

		cmd, _ := newKeyCmd("ignored")
		got, err := readKey(cmd, []string{"also", "ignored"}, path)
		require.NoError(t, err)
		assert.Equal(t, testMnemonic, got)
	})

	t.Run("missing key file", func(t *testing.T) {
		t.Parallel()
		cmd, _ := newKeyCmd("")
		_, err := readKey(cmd, nil, filepath.Join(t.TempDir(), "nope"))
		require.ErrorIs(t, err, scanerr.ErrInvalidInput)
	})

	t.Run("dash reads stdin", func(t *testing.T) {
		t.Parallel()
		cmd, stderr := newKeyCmd("abandon about")
		got, err := readKey(cmd, []string{"-"}, "")
		require.NoError(t, err)
		assert.Equal(t, "abandon about", got)
		assert.Empty(t, stderr.String())
	})

	t.Run("arguments warn", func(t *testing.T) {
		t.Parallel()
		cmd, stderr := newKeyCmd("")
		got, err := readKey(cmd, []string{"abandon", "about"}, "")
		require.NoError(t, err)
		assert.Equal(t, "abandon about", got)
		assert.Contains(t, stderr.String(), "warning: key material passed as arguments")
		assert.NotContains(t, stderr.String(), "abandon")
	})

	t.Run("piped stdin", func(t *testing.T) {
		t.Parallel()
		cmd, _ := newKeyCmd("1. abandon\n2. about\n")
		got, err := readKey(cmd, nil, "")
		require.NoError(t, err)
		assert.Equal(t, "1. abandon\n2. about", got)
	})
}
