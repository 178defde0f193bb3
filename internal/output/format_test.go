package output_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hdscan/internal/output"
)

func TestFormatter_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, &buf)

	require.NoError(t, f.Print(map[string]int{"gap_limit": 20}))
	assert.JSONEq(t, `{"gap_limit": 20}`, buf.String())
	assert.True(t, f.IsJSON())
}

func TestFormatter_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	require.NoError(t, f.Print("hello"))
	require.NoError(t, f.Printf("%d addresses\n", 3))
	require.NoError(t, f.Println("done"))
	assert.Equal(t, "hello\n3 addresses\ndone\n", buf.String())
	assert.Equal(t, output.FormatText, f.Format())
	assert.Equal(t, &buf, f.Writer())
}

func TestNewFormatter_ResolvesAuto(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatAuto, &buf)
	assert.Equal(t, output.FormatJSON, f.Format())
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want output.Format
	}{
		{"json", output.FormatJSON},
		{" JSON ", output.FormatJSON},
		{"text", output.FormatText},
		{"auto", output.FormatAuto},
		{"", output.FormatAuto},
		{"xml", output.FormatAuto},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, output.ParseFormat(tc.in), tc.in)
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatJSON))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, output.FormatJSON, output.DetectFormat(f, output.FormatAuto))
	assert.False(t, output.IsTerminal(f))
	assert.False(t, output.IsTerminal(nil))
}

func TestMessenger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := output.NewMessenger(&buf, false)
	m.Infof("connecting to %s", "host")
	m.Warnf("slow server")
	m.Successf("done")
	assert.Equal(t, "connecting to host\nwarning: slow server\ndone\n", buf.String())

	buf.Reset()
	output.NewMessenger(&buf, true).Successf("done")
	assert.Equal(t, "✅ done\n", buf.String())
}

func TestColorEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.True(t, output.ColorEnabled("always", &buf))
	assert.False(t, output.ColorEnabled("never", &buf))
	assert.False(t, output.ColorEnabled("auto", &buf))
}

func TestTable(t *testing.T) {
	t.Parallel()

	tbl := output.NewTable("PATH", "BALANCE")
	tbl.AlignRight(1)
	tbl.AddRow("m/84'/0'/0'/0/0", "0.00001000")
	tbl.AddRow("m/84'/0'/0'/1/12", "12.50000000")

	want := "" +
		"PATH                  BALANCE\n" +
		"----------------  -----------\n" +
		"m/84'/0'/0'/0/0    0.00001000\n" +
		"m/84'/0'/0'/1/12  12.50000000\n"
	assert.Equal(t, want, tbl.String())
	assert.Equal(t, 2, tbl.Len())
}

func TestTable_Options(t *testing.T) {
	t.Parallel()

	tbl := output.NewTable("A", "B").Indent("> ")
	tbl.SetNoHeader(true)
	tbl.SetSeparator(" | ")
	tbl.AddRow("x")
	tbl.AddRow("yy", "z")
	assert.Equal(t, "> x\n> yy | z\n", tbl.String())

	assert.Empty(t, output.NewTable().String())
}

func TestTable_Unicode(t *testing.T) {
	t.Parallel()

	tbl := output.NewTable("K", "V")
	tbl.AddRow("₿", "1")
	tbl.AddRow("ab", "2")
	assert.Equal(t, "K   V\n--  -\n₿   1\nab  2\n", tbl.String())
}
