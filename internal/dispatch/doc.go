// Package dispatch implements the client-side request dispatcher: pure
// routing functions that map a Request to a concrete destination node
// over a Topology snapshot (route.go), the forwarding-hop bookkeeping a
// request handler applies before re-sending a request it does not own
// within its own group (forward.go), and a retrying client-side Client
// that drives the whole routing/retry policy end to end (client.go),
// built on internal/rpcpool and internal/login.
package dispatch
