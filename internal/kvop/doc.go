// Package kvop encodes and decodes the key-value operation carried in a
// Request's opaque payload. The wire layer treats this payload as opaque
// bytes; this package fixes its internal shape: an operation tag, a
// length-prefixed key, and (Put only) a trailing value, so
// internal/nodeserver and any future client-side operation builder share
// one encoding.
package kvop
