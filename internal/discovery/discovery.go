package discovery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/hashicorp/memberlist"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// Discovery wraps memberlist gossip membership for a kvgrid cluster.
type Discovery struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	logger     *slog.Logger
	shutdown   atomic.Bool

	clusterID string

	onJoin   func(meta NodeMetadata)
	onLeave  func(nodeID string)
	onUpdate func(meta NodeMetadata)
}

// Config configures the discovery mechanism.
type Config struct {
	// NodeID is the gossip member name, stable across restarts.
	NodeID string

	// ClusterID must match between any two nodes that gossip with each
	// other; a mismatch means the two were pointed at different kvgrid
	// clusters and the join is rejected.
	ClusterID string

	BindAddr string
	BindPort int

	// RaftAddr is this node's topology-Raft bind address, advertised to
	// peers through gossip metadata so a new node can discover how to
	// reach the Raft group without a config file.
	RaftAddr string

	// Node and Zone identify this node's place in the topology, also
	// advertised through metadata so dispatch/migration components can
	// learn a peer's identity purely from discovery.
	Node kvdomain.NodeID
	Zone kvdomain.ZoneID

	SeedNodes []string

	Logger *slog.Logger
}

// NodeMetadata is what a node advertises about itself over gossip.
type NodeMetadata struct {
	NodeID    string          `json:"node_id"`
	ClusterID string          `json:"cluster_id"`
	RaftAddr  string          `json:"raft_addr"`
	Node      kvdomain.NodeID `json:"node"`
	Zone      kvdomain.ZoneID `json:"zone"`
}

// New creates a Discovery instance and joins any configured seed nodes.
func New(cfg Config) (*Discovery, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}

	meta := NodeMetadata{
		NodeID:    cfg.NodeID,
		ClusterID: cfg.ClusterID,
		RaftAddr:  cfg.RaftAddr,
		Node:      cfg.Node,
		Zone:      cfg.Zone,
	}
	mlConfig.Delegate = &metadataDelegate{metadata: meta}

	d := &Discovery{
		config:    mlConfig,
		logger:    cfg.Logger,
		clusterID: cfg.ClusterID,
	}
	mlConfig.Events = &eventDelegate{discovery: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("discovery: create memberlist: %w", err)
	}
	d.memberList = ml

	if len(cfg.SeedNodes) > 0 {
		n, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("discovery: join seed nodes: %w", err)
		}
		cfg.Logger.Info("joined cluster", "node_id", cfg.NodeID, "seed_nodes", cfg.SeedNodes, "joined_count", n)
	} else {
		cfg.Logger.Info("started discovery with no seed nodes", "node_id", cfg.NodeID)
	}

	return d, nil
}

// Members returns the list of current gossip members.
func (d *Discovery) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// Leave gracefully announces departure to the cluster.
func (d *Discovery) Leave() error {
	if d.memberList == nil {
		return nil
	}
	if err := d.memberList.Leave(0); err != nil {
		d.logger.Error("failed to leave cluster", "error", err)
		return err
	}
	d.logger.Info("left cluster")
	return nil
}

// Shutdown stops the gossip mechanism. Safe to call more than once.
func (d *Discovery) Shutdown() error {
	if !d.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if d.memberList == nil {
		return nil
	}
	if err := d.memberList.Shutdown(); err != nil {
		return fmt.Errorf("discovery: shutdown memberlist: %w", err)
	}
	d.logger.Info("discovery shutdown complete")
	return nil
}

// OnJoin registers a callback invoked when a node joins with valid,
// matching-cluster metadata.
func (d *Discovery) OnJoin(fn func(meta NodeMetadata)) { d.onJoin = fn }

// OnLeave registers a callback invoked when a node leaves.
func (d *Discovery) OnLeave(fn func(nodeID string)) { d.onLeave = fn }

// OnUpdate registers a callback invoked when a node's metadata changes.
func (d *Discovery) OnUpdate(fn func(meta NodeMetadata)) { d.onUpdate = fn }

// LocalNode returns this node's own gossip member record.
func (d *Discovery) LocalNode() *memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.LocalNode()
}

type eventDelegate struct {
	discovery *Discovery
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	gossipAddr := net.JoinHostPort(node.Addr.String(), fmt.Sprintf("%d", node.Port))

	var meta NodeMetadata
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &meta); err != nil {
			e.discovery.logger.Error("failed to parse node metadata", "node_id", node.Name, "error", err)
			return
		}
	}

	if e.discovery.clusterID != "" && meta.ClusterID != "" && meta.ClusterID != e.discovery.clusterID {
		e.discovery.logger.Error("cluster id mismatch, rejecting node",
			"node_id", node.Name,
			"expected_cluster_id", e.discovery.clusterID,
			"actual_cluster_id", meta.ClusterID)
		return
	}

	if meta.RaftAddr == "" {
		e.discovery.logger.Warn("node joined without raft metadata, using gossip address",
			"node_id", node.Name, "gossip_addr", gossipAddr)
		meta.RaftAddr = gossipAddr
	}

	e.discovery.logger.Info("node joined", "node_id", node.Name, "cluster_id", meta.ClusterID, "raft_addr", meta.RaftAddr)

	if e.discovery.onJoin != nil {
		e.discovery.onJoin(meta)
	}
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.discovery.logger.Info("node left", "node_id", node.Name, "addr", node.Addr.String())
	if e.discovery.onLeave != nil {
		e.discovery.onLeave(node.Name)
	}
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.discovery.logger.Debug("node updated", "node_id", node.Name, "addr", node.Addr.String())
	if e.discovery.onUpdate == nil {
		return
	}
	var meta NodeMetadata
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &meta); err != nil {
			e.discovery.logger.Error("failed to parse updated node metadata", "node_id", node.Name, "error", err)
			return
		}
	}
	e.discovery.onUpdate(meta)
}

// slogWriter adapts slog.Logger to io.Writer for memberlist's own
// logging, which only knows how to write lines to an io.Writer.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

// metadataDelegate supplies this node's NodeMetadata to memberlist.
type metadataDelegate struct {
	metadata NodeMetadata
}

func (m *metadataDelegate) NodeMeta(limit int) []byte {
	data, err := json.Marshal(m.metadata)
	if err != nil {
		return nil
	}
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

func (m *metadataDelegate) NotifyMsg([]byte) {}

func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }

func (m *metadataDelegate) LocalState(join bool) []byte { return nil }

func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool) {}
