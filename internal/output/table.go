package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table renders tabular data for text output.
type Table struct {
	headers   []string
	rows      [][]string
	right     map[int]bool
	noHeader  bool
	separator string
	indent    string
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:   headers,
		rows:      [][]string{},
		right:     map[int]bool{},
		separator: "  ",
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// AlignRight right-aligns the given columns, used for amounts.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// Indent prefixes every line.
func (t *Table) Indent(prefix string) *Table {
	t.indent = prefix
	return t
}

// SetNoHeader suppresses the header row.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// SetSeparator sets the column separator.
func (t *Table) SetSeparator(sep string) {
	t.separator = sep
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	widths := t.widths()

	if !t.noHeader && len(t.headers) > 0 {
		if err := t.renderRow(w, t.headers, widths); err != nil {
			return err
		}
		rule := make([]string, len(widths))
		for i, width := range widths {
			rule[i] = strings.Repeat("-", width)
		}
		if err := t.renderRow(w, rule, widths); err != nil {
			return err
		}
	}

	for _, row := range t.rows {
		if err := t.renderRow(w, row, widths); err != nil {
			return err
		}
	}

	return nil
}

// String returns the table as a string.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

// widths returns the display width of every column.
func (t *Table) widths() []int {
	numCols := len(t.headers)
	for _, row := range t.rows {
		numCols = max(numCols, len(row))
	}

	widths := make([]int, numCols)
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	return widths
}

func (t *Table) renderRow(w io.Writer, cells []string, widths []int) error {
	// Missing trailing cells are left off rather than padded.
	parts := make([]string, min(len(cells), len(widths)))
	for i := range parts {
		cell, width := cells[i], widths[i]
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(cell))
		if t.right[i] {
			parts[i] = pad + cell
		} else {
			parts[i] = cell + pad
		}
	}
	line := strings.TrimRight(strings.Join(parts, t.separator), " ")
	_, err := fmt.Fprintln(w, t.indent+line)
	return err
}
