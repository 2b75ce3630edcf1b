package kvdomain

// Topology is an immutable snapshot of the cluster's partition/group/node/
// zone mappings. A new Topology always replaces the old one wholesale;
// nothing in this package ever mutates a Topology in place — see
// internal/clusterstate for how publication and retirement work.
type Topology struct {
	Seq           uint64
	NumPartitions int32

	// Partitions maps a partition id to the group that currently owns it.
	// Invariant: for any partition id present in a valid Topology, exactly
	// one group owns it.
	Partitions map[PartitionID]GroupID

	// Groups maps a group id to its ordered member list. Index 0 is not
	// necessarily the master; see GroupState for the current master.
	Groups map[GroupID][]NodeID

	// Nodes maps a node id to its network endpoint and zone.
	Nodes map[NodeID]Endpoint

	// Zones maps a zone name to its interned id.
	Zones map[string]ZoneID
}

// NewTopology returns an empty, valid Topology at sequence 0.
func NewTopology(numPartitions int32) *Topology {
	return &Topology{
		NumPartitions: numPartitions,
		Partitions:    make(map[PartitionID]GroupID),
		Groups:        make(map[GroupID][]NodeID),
		Nodes:         make(map[NodeID]Endpoint),
		Zones:         make(map[string]ZoneID),
	}
}

// Clone returns a deep copy so a caller can build the next snapshot from
// the current one without racing readers of the original.
func (t *Topology) Clone() *Topology {
	out := &Topology{
		Seq:           t.Seq,
		NumPartitions: t.NumPartitions,
		Partitions:    make(map[PartitionID]GroupID, len(t.Partitions)),
		Groups:        make(map[GroupID][]NodeID, len(t.Groups)),
		Nodes:         make(map[NodeID]Endpoint, len(t.Nodes)),
		Zones:         make(map[string]ZoneID, len(t.Zones)),
	}
	for k, v := range t.Partitions {
		out.Partitions[k] = v
	}
	for k, v := range t.Groups {
		members := make([]NodeID, len(v))
		copy(members, v)
		out.Groups[k] = members
	}
	for k, v := range t.Nodes {
		out.Nodes[k] = v
	}
	for k, v := range t.Zones {
		out.Zones[k] = v
	}
	return out
}

// GroupFor returns the group owning partition p and whether it is known to
// this snapshot.
func (t *Topology) GroupFor(p PartitionID) (GroupID, bool) {
	g, ok := t.Partitions[p]
	return g, ok
}

// Members returns the ordered node list for a group.
func (t *Topology) Members(g GroupID) []NodeID {
	return t.Groups[g]
}

// EndpointFor returns the network endpoint of a node.
func (t *Topology) EndpointFor(n NodeID) (Endpoint, bool) {
	e, ok := t.Nodes[n]
	return e, ok
}

// GroupRole is a node's current replication role within its group.
type GroupRole int

const (
	RoleUnknown GroupRole = iota
	RoleMaster
	RoleReplica
)

// GroupState records which member of a group is currently master, derived
// from replica-state notifications (internal/storage) and carried
// alongside a Topology so dispatch can pick a concrete destination without
// a second round trip. GroupState is keyed separately from Topology
// because the master can change far more often than group membership.
type GroupState struct {
	Group  GroupID
	Master NodeID
	// HasMaster is false when the group is between elections; dispatch
	// must treat "needs master" routing as unreachable rather than stale.
	HasMaster bool
}

// Delta bundles an updated Topology and/or GroupState to be absorbed by a
// Response recipient.
type Delta struct {
	Topology   *Topology
	GroupState *GroupState
}
