package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// ReplicaState is the single notification kind the replica-state
// listener publishes: a translation of the underlying engine's raw
// state-change events into one of four values, delivered to every
// channel returned by Subscribe.
type ReplicaState int

const (
	// StateUnknown is the initial state before the environment has
	// determined its role, or after it loses contact with its group and
	// cannot tell whether it is still a live replica.
	StateUnknown ReplicaState = iota
	StateMaster
	StateReplica
	StateDetached
)

func (s ReplicaState) String() string {
	switch s {
	case StateMaster:
		return "MASTER"
	case StateReplica:
		return "REPLICA"
	case StateDetached:
		return "DETACHED"
	default:
		return "UNKNOWN"
	}
}

// partitionPrefix returns the byte prefix every key belonging to
// partition p is stored under in the shared Badger handle. Partitions
// share one physical engine (one Badger DB per node); the prefix is
// what namespaces them and what DeletePrefix reclaims on migration-out.
func partitionPrefix(p kvdomain.PartitionID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(p))
	return append(buf, ':')
}

func partitionKey(p kvdomain.PartitionID, key []byte) []byte {
	prefixed := make([]byte, 0, 5+len(key))
	prefixed = append(prefixed, partitionPrefix(p)...)
	prefixed = append(prefixed, key...)
	return prefixed
}

// Environment is the Replicated Environment Manager: the per-node handle
// request handlers and the migration coordinator read and write
// through. It namespaces a single underlying Engine by partition, gates
// opening it behind the VersionDatabase compatibility check, and
// exposes the replica-state notification stream.
type Environment struct {
	engine    Engine
	versionDB *VersionDatabase
	logger    *slog.Logger

	id  kvdomain.EnvironmentUUID
	lsn atomic.Uint64

	mu        sync.RWMutex
	state     ReplicaState
	listeners []chan ReplicaState
}

// OpenEnvironment opens the non-replicated version database, runs the
// compatibility check (fatal UPGRADE_REQUIRED on mismatch), then opens
// the replicated Badger engine. versionDir and cfg.Dir must be distinct
// directories; the version database is never replicated and never
// shares a Badger handle with partition data.
func OpenEnvironment(ctx context.Context, cfg KVConfig, versionDir string, logger *slog.Logger) (*Environment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	versionDB, err := OpenVersionDatabase(versionDir)
	if err != nil {
		return nil, err
	}

	if err := versionDB.CheckAndStamp(ctx, logger, nil); err != nil {
		versionDB.Close()
		return nil, err
	}

	id, err := versionDB.EnvironmentID()
	if err != nil {
		versionDB.Close()
		return nil, err
	}

	engine, err := NewBadgerEngine(cfg, logger)
	if err != nil {
		versionDB.Close()
		return nil, fmt.Errorf("storage: open replicated environment: %w", err)
	}

	return &Environment{
		engine:    engine,
		versionDB: versionDB,
		logger:    logger,
		id:        id,
		state:     StateUnknown,
	}, nil
}

// ID returns this environment's stable identity, embedded in every
// CommitToken a write through this Environment produces.
func (e *Environment) ID() kvdomain.EnvironmentUUID { return e.id }

// Get reads a key scoped to partition p.
func (e *Environment) Get(ctx context.Context, p kvdomain.PartitionID, key []byte) ([]byte, error) {
	return e.engine.Get(ctx, partitionKey(p, key))
}

// Put writes a key scoped to partition p and returns the CommitToken for
// the write: this environment's identity plus the log sequence number
// just assigned, total-ordered within one environment.
func (e *Environment) Put(ctx context.Context, p kvdomain.PartitionID, key, value []byte) (kvdomain.CommitToken, error) {
	if err := e.engine.Set(ctx, partitionKey(p, key), value); err != nil {
		return kvdomain.CommitToken{}, err
	}
	return kvdomain.CommitToken{Env: e.id, LSN: e.lsn.Add(1)}, nil
}

// Delete removes a key scoped to partition p and returns the CommitToken
// for the deletion.
func (e *Environment) Delete(ctx context.Context, p kvdomain.PartitionID, key []byte) (kvdomain.CommitToken, error) {
	if err := e.engine.Delete(ctx, partitionKey(p, key)); err != nil {
		return kvdomain.CommitToken{}, err
	}
	return kvdomain.CommitToken{Env: e.id, LSN: e.lsn.Add(1)}, nil
}

// Scan iterates every key stored under partition p. fn receives the key
// with the partition prefix already stripped.
func (e *Environment) Scan(ctx context.Context, p kvdomain.PartitionID, fn func(key, value []byte) bool) error {
	prefix := partitionPrefix(p)
	return e.engine.Scan(ctx, prefix, func(key, value []byte) bool {
		return fn(key[len(prefix):], value)
	})
}

// ReclaimPartition deletes every key stored under partition p. The
// migration coordinator does not call it: a partition that migrated away
// keeps its local keys on the source until this is called.
func (e *Environment) ReclaimPartition(ctx context.Context, p kvdomain.PartitionID) (int, error) {
	return e.engine.DeletePrefix(ctx, partitionPrefix(p))
}

// State returns the current replica state.
func (e *Environment) State() ReplicaState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// SetState publishes a new replica state to every subscriber. Called by
// the component that watches the underlying engine's raw state-change
// events (the Raft leadership callback for the owning group, in
// practice) and translates them into one of the four values.
func (e *Environment) SetState(s ReplicaState) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	e.state = s
	listeners := append([]chan ReplicaState(nil), e.listeners...)
	e.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- s:
		default:
			e.logger.Warn("replica state listener is not keeping up, dropping notification", "state", s)
		}
	}
}

// Subscribe returns a channel that receives every subsequent state
// transition. The channel is buffered; a slow subscriber misses
// intermediate transitions rather than blocking the publisher.
func (e *Environment) Subscribe() <-chan ReplicaState {
	ch := make(chan ReplicaState, 4)
	e.mu.Lock()
	e.listeners = append(e.listeners, ch)
	e.mu.Unlock()
	return ch
}

// Stats returns the underlying engine's storage statistics.
func (e *Environment) Stats(ctx context.Context) (*KVStats, error) {
	return e.engine.Stats(ctx)
}

// Close shuts down the replicated engine and the version database, in
// that order.
func (e *Environment) Close() error {
	var firstErr error
	if err := e.engine.Close(); err != nil {
		firstErr = err
	}
	if err := e.versionDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
