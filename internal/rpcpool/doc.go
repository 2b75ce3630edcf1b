// Package rpcpool is an elastic pool of framed RPC connections to peer
// nodes, used by internal/dispatch to forward requests and by
// internal/migration to stream partition transfers. One client is built
// per target endpoint on demand and then pooled with idle eviction,
// rather than dialed fresh per call, since a busy dispatcher issues many
// concurrent requests to the same few peers.
package rpcpool
