// Package statcsv implements the operator-facing statistics file format:
// a UTF-8, comma-separated CSV with header row `time,<group:stat>,...`,
// a single space for a missing value at a timestamp, and size/file-count
// rollover. Embedded commas in JSON-valued stats are handled by
// semicolon substitution rather than RFC 4180 quoting, so rows are
// written directly rather than through encoding/csv, whose quoting
// behavior would fight the semicolon-substitution format.
package statcsv
