// Package clusterstate holds the authoritative Topology Map: the
// partition->group, group->node, node->endpoint, and zone->id mappings
// that the Partition Migration Coordinator's TOPO_UPDATE step writes into
// and that TOPO_BROADCAST pushes out. It is backed by a small Raft group
// (hashicorp/raft + hashicorp/raft-boltdb) so the admin database has a
// single linearizable writer, structured as a shard-map/FSM pair but
// over a flat, administratively-assigned partition map rather than a
// consistent-hashing virtual-node ring — kvgrid's migrations move one
// partition at a time under explicit admin control, not a hash ring
// rebalancing itself.
//
// Per-group master/replica role (GroupState) is tracked separately and is
// not Raft-replicated: it changes far more often than group membership and
// only needs to be eventually consistent for routing, fed by the local
// replica-state channel (internal/storage) and by TOPO_BROADCAST deltas
// absorbed from peers.
package clusterstate
