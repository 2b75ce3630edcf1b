// Package login caches per-endpoint connection handles: a dispatcher or
// node server that needs to talk to a given replication node, admin
// node, or storage node looks up a handle keyed by (host, port) rather
// than dialing fresh each call. Built on pkg/cmap.Map's LoadOrStore so
// that concurrent callers racing to reach the same endpoint for the
// first time converge on exactly one constructed handle, the backing
// store for any keyed, concurrently-accessed cache elsewhere in this
// codebase.
package login
