package dispatch

import (
	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// GroupStateLookup resolves a group's current master, mirroring
// clusterstate.Store.GroupState without importing that package (keeps
// dispatch routing pure and unit-testable against a plain map).
type GroupStateLookup func(kvdomain.GroupID) kvdomain.GroupState

// Destination is the resolved target of one dispatch attempt.
type Destination struct {
	Group    kvdomain.GroupID
	Node     kvdomain.NodeID
	Endpoint kvdomain.Endpoint
}

// ResolveGroup maps a Request's target (partition or group) to the
// group that should handle it.
func ResolveGroup(topo *kvdomain.Topology, req *kvdomain.Request) (kvdomain.GroupID, error) {
	if !req.Group.IsNull() {
		return req.Group, nil
	}
	g, ok := topo.GroupFor(req.Partition)
	if !ok {
		return 0, kvdomain.Wrap(kvdomain.ErrWrongShard, nil, "partition not present in topology")
	}
	return g, nil
}

// SelectDestination resolves the full node-level destination for req
// against topo, consulting groupState for the current master. It does
// not perform I/O.
func SelectDestination(topo *kvdomain.Topology, groupState GroupStateLookup, req *kvdomain.Request) (Destination, error) {
	group, err := ResolveGroup(topo, req)
	if err != nil {
		return Destination{}, err
	}

	members := topo.Members(group)
	if len(members) == 0 {
		return Destination{}, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "group has no members")
	}

	node, err := selectNode(topo, members, groupState(group), req)
	if err != nil {
		return Destination{}, err
	}

	ep, ok := topo.EndpointFor(node)
	if !ok {
		return Destination{}, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "no endpoint known for selected node")
	}

	return Destination{Group: group, Node: node, Endpoint: ep}, nil
}

// selectNode picks a destination node within a group's member list:
//   - write, ABSOLUTE consistency, or the transient needs-master flag
//     ⇒ current master.
//   - NONE_REQUIRED_NO_MASTER ⇒ any non-master replica.
//   - otherwise ⇒ any replica satisfying the read-zone filter.
func selectNode(topo *kvdomain.Topology, members []kvdomain.NodeID, gs kvdomain.GroupState, req *kvdomain.Request) (kvdomain.NodeID, error) {
	if req.NeedsMaster() {
		if !gs.HasMaster {
			return kvdomain.NodeID{}, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "group has no known master")
		}
		return gs.Master, nil
	}

	if req.Consistency != nil && req.Consistency.Level == kvdomain.ConsistencyNoneRequiredNoMaster {
		for _, n := range members {
			if !gs.HasMaster || n != gs.Master {
				return n, nil
			}
		}
		return kvdomain.NodeID{}, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "group has no non-master replica")
	}

	for _, n := range members {
		if readZoneEligible(topo, n, req) {
			return n, nil
		}
	}
	return kvdomain.NodeID{}, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "no replica satisfies read-zone filter")
}

// readZoneEligible reports whether node n is an acceptable destination
// under req's read-zone filter. Writes ignore the filter; an empty
// filter, or one containing only the zero/NULL zone id, means "no
// restriction", never "no zones allowed".
func readZoneEligible(topo *kvdomain.Topology, n kvdomain.NodeID, req *kvdomain.Request) bool {
	if req.Write {
		return true
	}
	if !hasRealZoneFilter(req.ReadZones) {
		return true
	}
	ep, ok := topo.EndpointFor(n)
	if !ok {
		return false
	}
	for _, z := range req.ReadZones {
		if z == ep.Zone {
			return true
		}
	}
	return false
}

// hasRealZoneFilter reports whether zones carries any non-reserved zone
// id. ZoneID 0 is reserved and never assigned to a real zone (see
// kvdomain.ZoneID), so a filter containing only zeros is equivalent to
// an empty one.
func hasRealZoneFilter(zones []kvdomain.ZoneID) bool {
	for _, z := range zones {
		if z != 0 {
			return true
		}
	}
	return false
}
