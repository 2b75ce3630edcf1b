// Package eventkey implements the operator-log event-key string form: a
// base-36 encoding of a 64-bit timestamp using the digit set "0-9 a-k L
// m-z" (uppercase L, lowercase everything else), followed by a
// one-letter category (S/P/L for status/perf/log).
package eventkey
