package statcsv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config controls where stats files live and when they roll over.
type Config struct {
	Dir          string
	FilePrefix   string
	MaxFileBytes int64
	MaxFiles     int
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = "kvgrid-stats"
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 10 << 20 // 10 MiB
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 10
	}
	return c
}

// Writer appends rows to a rolling set of stats CSV files. Columns are
// fixed at construction time: the header row is `time,<group:stat>,...`,
// and every row after it must align to that same column set.
type Writer struct {
	cfg     Config
	mu      sync.Mutex
	columns []string // sorted group:stat keys, excluding "time"

	file    *os.File
	written int64
	seq     int
}

// NewWriter creates a Writer over the given columns (group:stat keys,
// deduplicated and sorted for a stable header) and opens the first file.
func NewWriter(cfg Config, columns []string) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("statcsv: create dir: %w", err)
	}

	cols := append([]string(nil), columns...)
	sort.Strings(cols)

	w := &Writer{cfg: cfg, columns: cols}
	if err := w.openNewFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) header() string {
	return "time," + strings.Join(w.columns, ",")
}

func (w *Writer) openNewFile() error {
	w.seq++
	name := fmt.Sprintf("%s.%04d.csv", w.cfg.FilePrefix, w.seq)
	path := filepath.Join(w.cfg.Dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("statcsv: open %s: %w", path, err)
	}
	header := w.header() + "\n"
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return fmt.Errorf("statcsv: write header: %w", err)
	}
	w.file = f
	w.written = int64(len(header))

	w.pruneOldFiles()
	return nil
}

// pruneOldFiles deletes the oldest rolled files beyond cfg.MaxFiles.
func (w *Writer) pruneOldFiles() {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return
	}
	var matched []string
	prefix := w.cfg.FilePrefix + "."
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".csv") {
			matched = append(matched, e.Name())
		}
	}
	sort.Strings(matched)
	for len(matched) > w.cfg.MaxFiles {
		_ = os.Remove(filepath.Join(w.cfg.Dir, matched[0]))
		matched = matched[1:]
	}
}

// sanitize substitutes embedded commas with semicolons so a stat value
// never splits a row across extra columns.
func sanitize(v string) string {
	if !strings.Contains(v, ",") {
		return v
	}
	return strings.ReplaceAll(v, ",", ";")
}

// WriteRow writes one row at timestamp ts. values maps a group:stat
// column name (must be one passed to NewWriter) to its string value; a
// column absent from values is emitted as a single space, matching spec
// §6's "missing value" rule.
func (w *Writer) WriteRow(ts time.Time, values map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	b.WriteString(strconv.FormatInt(ts.UnixMilli(), 10))
	for _, col := range w.columns {
		b.WriteByte(',')
		v, ok := values[col]
		if !ok || v == "" {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(sanitize(v))
	}
	b.WriteByte('\n')
	line := b.String()

	if w.written+int64(len(line)) > w.cfg.MaxFileBytes {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("statcsv: close rolled file: %w", err)
		}
		if err := w.openNewFile(); err != nil {
			return err
		}
	}

	n, err := w.file.WriteString(line)
	if err != nil {
		return fmt.Errorf("statcsv: write row: %w", err)
	}
	w.written += int64(n)
	return nil
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
