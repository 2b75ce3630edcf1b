package clusterstate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// applyTimeout bounds how long a propose call waits for Raft commit.
const applyTimeout = 5 * time.Second

// Store is the node-local handle onto the topology Raft group: the
// authoritative, linearizable partition->group map, plus the
// non-replicated per-group master/replica state described in
// internal/clusterstate's package doc.
type Store struct {
	node   *RaftNode
	fsm    *FSM
	logger *slog.Logger

	groupMu sync.RWMutex
	groups  map[kvdomain.GroupID]kvdomain.GroupState
}

// NewStore wires a Store over an already-constructed RaftNode/FSM pair.
func NewStore(node *RaftNode, fsm *FSM, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		node:   node,
		fsm:    fsm,
		logger: logger,
		groups: make(map[kvdomain.GroupID]kvdomain.GroupState),
	}
}

// Topology returns the current topology snapshot.
func (s *Store) Topology() *kvdomain.Topology {
	return s.fsm.Topology()
}

// GroupState returns the locally known master/replica state for a group.
// Absent entries report HasMaster=false, matching "between elections"
// semantics.
func (s *Store) GroupState(g kvdomain.GroupID) kvdomain.GroupState {
	s.groupMu.RLock()
	defer s.groupMu.RUnlock()
	gs, ok := s.groups[g]
	if !ok {
		return kvdomain.GroupState{Group: g}
	}
	return gs
}

// SetGroupState updates the locally known master for a group. Called from
// the local replica-state channel (internal/storage) when this node's own
// role changes, and from TOPO_BROADCAST delta absorption when a peer
// reports a different group's state.
func (s *Store) SetGroupState(gs kvdomain.GroupState) {
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	s.groups[gs.Group] = gs
}

// AbsorbDelta applies an optional topology/group-state delta arriving on
// a Response. Only the group-state half is applied: the authoritative
// topology only ever advances through this node's own Raft apply loop,
// so the topology half is ignored whatever its Seq.
func (s *Store) AbsorbDelta(d kvdomain.Delta) {
	if d.GroupState != nil {
		s.SetGroupState(*d.GroupState)
	}
}

func (s *Store) propose(entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("clusterstate: marshal log entry: %w", err)
	}
	if !s.node.IsLeader() {
		return fmt.Errorf("clusterstate: not leader, leader is %q: %w", s.node.LeaderID(), kvdomain.ErrNotMaster)
	}
	return s.node.Apply(data, applyTimeout)
}

// ProposeBootstrap replaces the whole topology. Used once, by the admin
// "configure" call against the genesis node.
func (s *Store) ProposeBootstrap(numPartitions int32, partitions map[kvdomain.PartitionID]kvdomain.GroupID) error {
	payload, err := json.Marshal(BootstrapTopologyPayload{NumPartitions: numPartitions, Partitions: partitions})
	if err != nil {
		return fmt.Errorf("clusterstate: marshal bootstrap payload: %w", err)
	}
	return s.propose(LogEntry{Type: LogEntryBootstrapTopology, Payload: payload})
}

// ProposePartitionAssign reassigns a partition to a group. This is the
// entry point the Partition Migration Coordinator's TOPO_UPDATE step
// calls once a transfer has succeeded.
func (s *Store) ProposePartitionAssign(partition kvdomain.PartitionID, group kvdomain.GroupID) error {
	payload, err := json.Marshal(PartitionAssignPayload{Partition: partition, Group: group})
	if err != nil {
		return fmt.Errorf("clusterstate: marshal partition-assign payload: %w", err)
	}
	return s.propose(LogEntry{Type: LogEntryPartitionAssign, Payload: payload})
}

// ProposeGroupMembers sets a group's member list.
func (s *Store) ProposeGroupMembers(group kvdomain.GroupID, members []kvdomain.NodeID) error {
	payload, err := json.Marshal(GroupMembersPayload{Group: group, Members: members})
	if err != nil {
		return fmt.Errorf("clusterstate: marshal group-members payload: %w", err)
	}
	return s.propose(LogEntry{Type: LogEntryGroupMembers, Payload: payload})
}

// ProposeNodeEndpoint sets or updates a node's network endpoint.
func (s *Store) ProposeNodeEndpoint(node kvdomain.NodeID, ep kvdomain.Endpoint) error {
	payload, err := json.Marshal(NodeEndpointPayload{Node: node, Host: ep.Host, Port: ep.Port, Zone: ep.Zone})
	if err != nil {
		return fmt.Errorf("clusterstate: marshal node-endpoint payload: %w", err)
	}
	return s.propose(LogEntry{Type: LogEntryNodeEndpoint, Payload: payload})
}

// ProposeZoneDefine interns a zone name.
func (s *Store) ProposeZoneDefine(name string, id kvdomain.ZoneID) error {
	payload, err := json.Marshal(ZoneDefinePayload{Name: name, ID: id})
	if err != nil {
		return fmt.Errorf("clusterstate: marshal zone-define payload: %w", err)
	}
	return s.propose(LogEntry{Type: LogEntryZoneDefine, Payload: payload})
}

// IsLeader reports whether this node currently holds the topology Raft
// group's leadership (and so can accept proposes).
func (s *Store) IsLeader() bool { return s.node.IsLeader() }

// LeaderCh forwards the underlying Raft node's leadership-change channel.
func (s *Store) LeaderCh() <-chan bool { return s.node.LeaderCh() }

// Close shuts down the underlying Raft node.
func (s *Store) Close() error { return s.node.Close() }
