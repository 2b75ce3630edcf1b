// Package output provides result formatting for kvgrid-admin.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format is an output rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formatter renders data to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the Formatter for format.
func NewFormatter(format Format) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{}
	}
	return &TableFormatter{}
}

// JSONFormatter renders data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Table is a minimal fixed-width table renderer: enough for the short,
// small result sets an admin CLI command prints, not a general-purpose
// terminal UI.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(row []string) {
		var b strings.Builder
		for i, cell := range row {
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}

	writeRow(t.Headers)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return nil
}

// TableFormatter renders data via its own Render method if it has one,
// falling back to a plain %+v print. kvgrid-admin's commands build
// *Table values directly rather than routing generic structs through
// this formatter's table path.
type TableFormatter struct{}

func (f *TableFormatter) Format(w io.Writer, data any) error {
	if t, ok := data.(*Table); ok {
		return t.Render(w)
	}
	_, err := fmt.Fprintf(w, "%+v\n", data)
	return err
}
