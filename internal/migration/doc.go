// Package migration implements the Partition Migration Coordinator: the
// REQUEST_SEND -> STATUS_POLL -> {CANCEL | TOPO_UPDATE} -> TOPO_BROADCAST
// -> DONE state machine (with CLEANUP reachable from any state on plan
// cancellation) that moves one partition from a source group to a
// target group.
//
// Every step is idempotent and scheduled as its own timer callback, or
// as a short-lived goroutine when it runs with no delay, rather than on a
// dedicated per-plan goroutine held for the plan's whole lifetime.
//
// Coordinator is the admin/client side of the four master-to-master
// calls (start/check/cancel/can-cancel); Responder, in responder.go, is
// the side that actually answers them on a group's master, including the
// partition data transfer itself. Broadcaster's RPC implementation lives
// in broadcast.go.
package migration
