package clusterstate

import (
	"fmt"
	"log/slog"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// BootstrapMode selects how a node joins the topology Raft group on
// startup.
type BootstrapMode int

const (
	// ModeGenesis means this node bootstraps a brand-new single-member
	// topology Raft group and waits for an admin "configure" call before
	// it has a usable partition map.
	ModeGenesis BootstrapMode = iota

	// ModeJoin means this node has an existing peer address to join; it
	// starts its request handler immediately and accepts whatever
	// topology the leader pushes once it is added as a voter.
	ModeJoin

	// ModeRestart means this node is restarting with existing on-disk
	// Raft state (DataDir already populated) and should simply reopen
	// it, neither bootstrapping nor joining.
	ModeRestart
)

// BootstrapConfig describes how to bring up this node's topology store.
type BootstrapConfig struct {
	Raft          RaftConfig
	Mode          BootstrapMode
	NumPartitions int32

	// JoinAddr is the Raft bind address of an existing cluster member,
	// required when Mode == ModeJoin.
	JoinAddr string
	// JoinVia, if set, is called to ask an existing leader to add this
	// node as a voter (e.g. over an admin RPC); left nil lets an
	// operator issue the AddVoter call out of band instead.
	JoinVia func(nodeID, bindAddr string) error
}

// Bootstrap brings up the topology Store under the given mode and returns
// it once the local Raft node has started (not necessarily once it has a
// populated topology: a ModeGenesis node is usable for reads/writes of an
// empty Topology{NumPartitions} until "configure" lands).
func Bootstrap(cfg BootstrapConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raftCfg := cfg.Raft
	raftCfg.Logger = logger

	switch cfg.Mode {
	case ModeGenesis:
		raftCfg.Bootstrap = true
	case ModeJoin, ModeRestart:
		raftCfg.Bootstrap = false
	default:
		return nil, fmt.Errorf("clusterstate: unknown bootstrap mode %d", cfg.Mode)
	}

	fsm := NewFSM(cfg.NumPartitions, logger)
	node, err := NewRaftNode(raftCfg, fsm)
	if err != nil {
		return nil, fmt.Errorf("clusterstate: start raft node: %w", err)
	}

	store := NewStore(node, fsm, logger)

	if cfg.Mode == ModeJoin {
		if cfg.JoinVia != nil {
			if err := cfg.JoinVia(cfg.Raft.NodeID, cfg.Raft.BindAddr); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("clusterstate: join via leader: %w", err)
			}
			logger.Info("requested to join topology raft group", "join_addr", cfg.JoinAddr)
		} else {
			logger.Info("started topology raft node awaiting external AddVoter call", "join_addr", cfg.JoinAddr)
		}
	}

	return store, nil
}

// AwaitConfigured blocks (via the supplied notify channel, typically fed
// by an admin RPC handler) until a genesis node receives its first
// "configure" bootstrap, then returns the resulting topology. A node that
// is not in ModeGenesis, or one whose topology already has partitions
// assigned, should not call this.
func AwaitConfigured(store *Store, configured <-chan struct{}) *kvdomain.Topology {
	<-configured
	return store.Topology()
}
