package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format   Format
		wantType string
	}{
		{FormatJSON, "*output.JSONFormatter"},
		{FormatTable, "*output.TableFormatter"},
		{"unknown", "*output.TableFormatter"}, // default to table
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f := NewFormatter(tt.format)
			if f == nil {
				t.Fatal("NewFormatter returned nil")
			}
			switch tt.format {
			case FormatJSON:
				if _, ok := f.(*JSONFormatter); !ok {
					t.Error("expected JSONFormatter")
				}
			default:
				if _, ok := f.(*TableFormatter); !ok {
					t.Error("expected TableFormatter")
				}
			}
		})
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	f := &JSONFormatter{}

	t.Run("formats struct as JSON", func(t *testing.T) {
		data := struct {
			Name  string `json:"name"`
			Value int    `json:"value"`
		}{Name: "test", Value: 42}

		var buf bytes.Buffer
		if err := f.Format(&buf, data); err != nil {
			t.Fatalf("Format() error = %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, `"name": "test"`) {
			t.Error("Format() missing name field")
		}
		if !strings.Contains(output, `"value": 42`) {
			t.Error("Format() missing value field")
		}
	})

	t.Run("formats nil as JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := f.Format(&buf, nil); err != nil {
			t.Fatalf("Format(nil) error = %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "null" {
			t.Errorf("Format(nil) = %q, want 'null'", got)
		}
	})
}

func TestTable_Render(t *testing.T) {
	table := &Table{
		Headers: []string{"PARTITION", "GROUP"},
		Rows: [][]string{
			{"0", "1"},
			{"12", "3"},
		},
	}

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Render() produced %d lines, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "PARTITION") {
		t.Errorf("header line = %q", lines[0])
	}
	// Column 0 grows to fit its widest cell (the "PARTITION" header), so
	// both data rows' second column must start at the same offset.
	col1Start := strings.LastIndex(lines[1], " ") + 1
	if col1Start != strings.LastIndex(lines[2], " ")+1 {
		t.Errorf("rows not aligned: %q / %q", lines[1], lines[2])
	}
}

func TestTableFormatter_Format(t *testing.T) {
	f := &TableFormatter{}

	t.Run("renders a *Table", func(t *testing.T) {
		var buf bytes.Buffer
		table := &Table{Headers: []string{"A"}, Rows: [][]string{{"1"}}}
		if err := f.Format(&buf, table); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if !strings.Contains(buf.String(), "A") {
			t.Error("Format() missing header")
		}
	})

	t.Run("falls back to %+v for non-table data", func(t *testing.T) {
		var buf bytes.Buffer
		if err := f.Format(&buf, struct{ X int }{X: 5}); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if !strings.Contains(buf.String(), "X:5") {
			t.Errorf("Format() = %q, want it to contain X:5", buf.String())
		}
	})
}
