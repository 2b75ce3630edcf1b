// Package discovery provides gossip-based node discovery for a kvgrid
// cluster, used so a node can find the topology Raft group's current
// members without a hardcoded peer list. Adapted from this codebase's
// own clusterserver discovery wrapper around hashicorp/memberlist; the
// gossip protocol and event-delegate shape carry over almost unchanged,
// only the metadata a node advertises about itself changed to carry a
// kvdomain.NodeID and zone alongside its Raft address.
package discovery
