package clusterstate

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// LogEntryType tags a Raft log entry applied to the topology FSM.
type LogEntryType uint8

const (
	// LogEntryBootstrapTopology replaces the whole topology wholesale,
	// used once by the genesis node's "configure" admin call.
	LogEntryBootstrapTopology LogEntryType = 1

	// LogEntryPartitionAssign reassigns one partition to a group, the
	// log entry the Migration Coordinator's TOPO_UPDATE step applies.
	LogEntryPartitionAssign LogEntryType = 2

	// LogEntryGroupMembers sets a group's member list.
	LogEntryGroupMembers LogEntryType = 3

	// LogEntryNodeEndpoint sets or updates a node's network endpoint and
	// zone.
	LogEntryNodeEndpoint LogEntryType = 4

	// LogEntryZoneDefine interns a zone name to an id.
	LogEntryZoneDefine LogEntryType = 5
)

// LogEntry is the envelope every Raft log entry carries.
type LogEntry struct {
	Type    LogEntryType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// BootstrapTopologyPayload replaces the entire topology.
type BootstrapTopologyPayload struct {
	NumPartitions int32                              `json:"num_partitions"`
	Partitions    map[kvdomain.PartitionID]kvdomain.GroupID `json:"partitions"`
}

// PartitionAssignPayload reassigns partition Partition to group Group.
// Idempotent: applying the same assignment twice is a no-op on the
// second application.
type PartitionAssignPayload struct {
	Partition kvdomain.PartitionID `json:"partition"`
	Group     kvdomain.GroupID     `json:"group"`
}

// GroupMembersPayload sets a group's ordered member list.
type GroupMembersPayload struct {
	Group   kvdomain.GroupID   `json:"group"`
	Members []kvdomain.NodeID `json:"members"`
}

// NodeEndpointPayload sets a node's network endpoint.
type NodeEndpointPayload struct {
	Node kvdomain.NodeID    `json:"node"`
	Host string              `json:"host"`
	Port int                 `json:"port"`
	Zone kvdomain.ZoneID    `json:"zone"`
}

// ZoneDefinePayload interns a zone name.
type ZoneDefinePayload struct {
	Name string          `json:"name"`
	ID   kvdomain.ZoneID `json:"id"`
}

// FSM implements raft.FSM over a kvdomain.Topology. Every mutation bumps
// the topology's Seq, so a new snapshot replaces the old atomically under
// a monotonically increasing sequence number.
type FSM struct {
	mu     sync.RWMutex
	topo   *kvdomain.Topology
	logger *slog.Logger
}

// NewFSM creates an FSM starting from an empty topology with the given
// partition count fixed up front, since key-to-partition resolution
// needs NumPartitions to stay constant for the topology's lifetime.
func NewFSM(numPartitions int32, logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		topo:   kvdomain.NewTopology(numPartitions),
		logger: logger,
	}
}

// Apply applies one committed Raft log entry. As in the rest of this
// codebase's FSMs, a malformed or unrecognized entry is treated as
// unrecoverable corruption and panics rather than returning an error —
// Raft has no way to "reject" a committed entry after the fact.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("FATAL: failed to unmarshal topology log entry", "error", err, "log_index", log.Index)
		panic(fmt.Sprintf("clusterstate.FSM.Apply: unmarshal failed at index=%d: %v", log.Index, err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch entry.Type {
	case LogEntryBootstrapTopology:
		f.applyBootstrap(entry.Payload)
	case LogEntryPartitionAssign:
		f.applyPartitionAssign(entry.Payload)
	case LogEntryGroupMembers:
		f.applyGroupMembers(entry.Payload)
	case LogEntryNodeEndpoint:
		f.applyNodeEndpoint(entry.Payload)
	case LogEntryZoneDefine:
		f.applyZoneDefine(entry.Payload)
	default:
		f.logger.Error("FATAL: unknown topology log entry type", "type", entry.Type, "log_index", log.Index)
		panic(fmt.Sprintf("clusterstate.FSM.Apply: unknown log type %d at index=%d", entry.Type, log.Index))
	}

	f.topo.Seq++
	return nil
}

func (f *FSM) mustUnmarshal(payload json.RawMessage, v interface{}, who string) {
	if err := json.Unmarshal(payload, v); err != nil {
		f.logger.Error("FATAL: failed to unmarshal topology payload", "entry", who, "error", err)
		panic(fmt.Sprintf("clusterstate.FSM.%s: unmarshal failed: %v", who, err))
	}
}

func (f *FSM) applyBootstrap(payload json.RawMessage) {
	var p BootstrapTopologyPayload
	f.mustUnmarshal(payload, &p, "applyBootstrap")

	next := kvdomain.NewTopology(p.NumPartitions)
	next.Seq = f.topo.Seq
	next.Groups = f.topo.Groups
	next.Nodes = f.topo.Nodes
	next.Zones = f.topo.Zones
	for k, v := range p.Partitions {
		next.Partitions[k] = v
	}
	f.topo = next

	f.logger.Info("topology bootstrapped", "num_partitions", p.NumPartitions)
}

func (f *FSM) applyPartitionAssign(payload json.RawMessage) {
	var p PartitionAssignPayload
	f.mustUnmarshal(payload, &p, "applyPartitionAssign")

	if cur, ok := f.topo.Partitions[p.Partition]; ok && cur == p.Group {
		f.logger.Debug("partition assignment already applied, skipping", "partition", p.Partition, "group", p.Group)
		return
	}
	f.topo.Partitions[p.Partition] = p.Group
	f.logger.Info("partition reassigned", "partition", p.Partition, "group", p.Group)
}

func (f *FSM) applyGroupMembers(payload json.RawMessage) {
	var p GroupMembersPayload
	f.mustUnmarshal(payload, &p, "applyGroupMembers")
	f.topo.Groups[p.Group] = p.Members
	f.logger.Info("group membership updated", "group", p.Group, "members", p.Members)
}

func (f *FSM) applyNodeEndpoint(payload json.RawMessage) {
	var p NodeEndpointPayload
	f.mustUnmarshal(payload, &p, "applyNodeEndpoint")
	f.topo.Nodes[p.Node] = kvdomain.Endpoint{Host: p.Host, Port: p.Port, Zone: p.Zone}
	f.logger.Info("node endpoint updated", "node", p.Node, "host", p.Host, "port", p.Port)
}

func (f *FSM) applyZoneDefine(payload json.RawMessage) {
	var p ZoneDefinePayload
	f.mustUnmarshal(payload, &p, "applyZoneDefine")
	f.topo.Zones[p.Name] = p.ID
	f.logger.Info("zone defined", "name", p.Name, "id", p.ID)
}

// Topology returns a deep copy of the current topology, safe for the
// caller to hold without racing Apply.
func (f *FSM) Topology() *kvdomain.Topology {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.topo.Clone()
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{topo: f.topo.Clone()}, nil
}

// Restore implements raft.FSM, replacing all state.
func (f *FSM) Restore(r io.ReadCloser) error {
	defer r.Close()

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var topo kvdomain.Topology
	if err := json.NewDecoder(gzReader).Decode(&topo); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.topo = &topo

	f.logger.Info("topology fsm restored from snapshot", "seq", topo.Seq, "partitions", len(topo.Partitions))
	return nil
}

type fsmSnapshot struct {
	topo *kvdomain.Topology
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		gzWriter := gzip.NewWriter(sink)
		defer gzWriter.Close()

		if err := json.NewEncoder(gzWriter).Encode(s.topo); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return gzWriter.Close()
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
