package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// TopologyView is the read-only subset of clusterstate.Store the
// coordinator needs to resolve a group's current master endpoint.
// Spelled as an interface so this package, like internal/dispatch,
// never imports the Raft-backed store directly.
type TopologyView interface {
	Topology() *kvdomain.Topology
	GroupState(kvdomain.GroupID) kvdomain.GroupState
}

// TopologyUpdater is the write side: proposing the partition's new owner
// to the authoritative topology. Implemented by
// clusterstate.Store.ProposePartitionAssign.
type TopologyUpdater interface {
	ProposePartitionAssign(partition kvdomain.PartitionID, group kvdomain.GroupID) error
}

// Broadcaster pushes the latest topology snapshot to enough nodes to
// establish quorum visibility, over the same framed connections used
// for migration control calls.
type Broadcaster interface {
	Broadcast(ctx context.Context, topo *kvdomain.Topology) error
}

type step int

const (
	stepRequestSend step = iota
	stepStatusPoll
	stepCancel
	stepTopoUpdate
	stepTopoBroadcast
	stepCleanup
	stepDone
)

// job is one in-flight migration plan.
type job struct {
	mu     sync.Mutex
	record *kvdomain.MigrationRecord
	step   step
	timer  *time.Timer

	cancelRequested bool
	done            chan struct{}
}

// Coordinator runs the partition migration state machine. There is no
// dedicated goroutine per plan: each step reschedules itself as a timer
// callback, and the timer callbacks are what actually execute a step.
type Coordinator struct {
	cfg         Config
	transport   Transport
	topo        TopologyView
	updater     TopologyUpdater
	broadcaster Broadcaster
	locks       *GroupLocks
	logger      *slog.Logger

	mu   sync.Mutex
	jobs map[kvdomain.PartitionID]*job
}

// New builds a Coordinator.
func New(cfg Config, transport Transport, topo TopologyView, updater TopologyUpdater, broadcaster Broadcaster, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:         cfg,
		transport:   transport,
		topo:        topo,
		updater:     updater,
		broadcaster: broadcaster,
		locks:       NewGroupLocks(),
		logger:      logger,
		jobs:        make(map[kvdomain.PartitionID]*job),
	}
}

// Start begins moving partition from source to target. failedShard
// short-circuits REQUEST_SEND straight to TOPO_UPDATE: there is nothing
// to move, ownership is reassigned administratively. Returns an error
// if partition already has a migration in flight.
func (c *Coordinator) Start(ctx context.Context, partition kvdomain.PartitionID, source, target kvdomain.GroupID, failedShard bool) (*kvdomain.MigrationRecord, error) {
	c.mu.Lock()
	if _, exists := c.jobs[partition]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("migration: partition %d already has a migration in flight", partition)
	}
	j := &job{
		record: &kvdomain.MigrationRecord{
			Partition:   partition,
			Source:      source,
			Target:      target,
			FailedShard: failedShard,
			State:       kvdomain.MigrationRequested,
		},
		done: make(chan struct{}),
	}
	c.jobs[partition] = j
	c.mu.Unlock()

	c.locks.Acquire(source, target)

	if failedShard {
		j.step = stepTopoUpdate
	} else {
		j.step = stepRequestSend
	}
	j.record.State = kvdomain.MigrationRunning

	c.schedule(j, 0)
	return j.record.Clone(), nil
}

// Cancel marks partition's migration for cancellation. A plan in
// REQUEST_SEND, STATUS_POLL or CANCEL transitions to CLEANUP the next
// time its current step would otherwise retry or advance. A plan already
// in TOPO_UPDATE is not diverted; TOPO_BROADCAST then finishes it as
// cancelled without broadcasting.
func (c *Coordinator) Cancel(partition kvdomain.PartitionID) error {
	c.mu.Lock()
	j, ok := c.jobs[partition]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("migration: no migration in flight for partition %d", partition)
	}

	j.mu.Lock()
	j.cancelRequested = true
	j.mu.Unlock()
	return nil
}

// Status returns a snapshot of partition's migration record, if one is
// tracked.
func (c *Coordinator) Status(partition kvdomain.PartitionID) (*kvdomain.MigrationRecord, bool) {
	c.mu.Lock()
	j, ok := c.jobs[partition]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.record.Clone(), true
}

func (c *Coordinator) schedule(j *job, delay time.Duration) {
	if delay <= 0 {
		go c.runStep(j)
		return
	}
	j.timer = time.AfterFunc(delay, func() { c.runStep(j) })
}

func (c *Coordinator) runStep(j *job) {
	j.mu.Lock()
	s := j.step
	cancelRequested := j.cancelRequested
	j.mu.Unlock()

	// Cancellation only diverts the forward-progress steps; once a plan
	// has started unwinding (CLEANUP) or has committed a topology change
	// (TOPO_UPDATE/TOPO_BROADCAST), it is not diverted here;
	// doTopoBroadcast itself finishes a cancelled plan as INTERRUPTED.
	if cancelRequested && (s == stepRequestSend || s == stepStatusPoll || s == stepCancel) {
		s = stepCleanup
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()

	switch s {
	case stepRequestSend:
		c.doRequestSend(ctx, j)
	case stepStatusPoll:
		c.doStatusPoll(ctx, j)
	case stepCancel:
		c.doCancel(ctx, j)
	case stepTopoUpdate:
		c.doTopoUpdate(ctx, j)
	case stepTopoBroadcast:
		c.doTopoBroadcast(ctx, j)
	case stepCleanup:
		c.doCleanup(ctx, j)
	case stepDone:
		c.finish(j)
	}
}

func (c *Coordinator) resolveMaster(group kvdomain.GroupID) (kvdomain.Endpoint, bool) {
	gs := c.topo.GroupState(group)
	if !gs.HasMaster {
		return kvdomain.Endpoint{}, false
	}
	return c.topo.Topology().EndpointFor(gs.Master)
}

// route interprets a remote status, shared by REQUEST_SEND and
// STATUS_POLL: pending/running polls again, success advances to
// TOPO_UPDATE, a reported error cancels, and an unresolvable master
// retries REQUEST_SEND after a failover delay.
func (c *Coordinator) route(j *job, resp *wire.MigrationControlResponse) {
	switch resp.Status {
	case kvdomain.RemotePending, kvdomain.RemoteRunning:
		j.record.ObservedTargetStatus = resp.Status
		c.advance(j, stepStatusPoll, c.cfg.CheckMigrationPeriod)
	case kvdomain.RemoteSucceeded:
		j.record.ObservedTargetStatus = resp.Status
		c.advance(j, stepTopoUpdate, 0)
	case kvdomain.RemoteError:
		j.record.Cause = resp.Cause
		c.advance(j, stepCancel, 0)
	default: // RemoteUnknown
		c.advance(j, stepRequestSend, c.cfg.RNFailoverDelay)
	}
}

func (c *Coordinator) advance(j *job, next step, delay time.Duration) {
	j.mu.Lock()
	j.step = next
	j.mu.Unlock()
	c.schedule(j, delay)
}

func (c *Coordinator) doRequestSend(ctx context.Context, j *job) {
	ep, ok := c.resolveMaster(j.record.Target)
	if !ok {
		c.advance(j, stepRequestSend, c.cfg.RNFailoverDelay)
		return
	}

	resp, err := c.transport.StartMigration(ctx, ep, j.record.Partition, j.record.Source)
	if err != nil {
		c.advance(j, stepRequestSend, c.cfg.RNFailoverDelay)
		return
	}
	c.route(j, resp)
}

func (c *Coordinator) doStatusPoll(ctx context.Context, j *job) {
	ep, ok := c.resolveMaster(j.record.Target)
	if !ok {
		c.advance(j, stepRequestSend, c.cfg.RNFailoverDelay)
		return
	}

	resp, err := c.transport.CheckMigration(ctx, ep, j.record.Partition)
	if err != nil {
		c.advance(j, stepRequestSend, c.cfg.RNFailoverDelay)
		return
	}

	if resp.Status == kvdomain.RemoteRunning || resp.Status == kvdomain.RemoteSucceeded {
		if srcEp, ok := c.resolveMaster(j.record.Source); ok {
			if srcResp, err := c.transport.CheckMigration(ctx, srcEp, j.record.Partition); err == nil {
				j.record.ObservedSourceStatus = srcResp.Status
			}
		}
	}

	c.route(j, resp)
}

func (c *Coordinator) doCancel(ctx context.Context, j *job) {
	ep, ok := c.resolveMaster(j.record.Source)
	if !ok {
		c.advance(j, stepCancel, c.cfg.RNFailoverDelay)
		return
	}

	resp, err := c.transport.Cancel(ctx, ep, j.record.Partition, j.record.Target)
	if err != nil || resp.Status != kvdomain.RemoteSucceeded {
		c.advance(j, stepCancel, c.cfg.CheckMigrationPeriod)
		return
	}

	j.mu.Lock()
	j.record.State = kvdomain.MigrationErrored
	j.mu.Unlock()
	c.advance(j, stepDone, 0)
}

func (c *Coordinator) doTopoUpdate(ctx context.Context, j *job) {
	if g, ok := c.topo.Topology().GroupFor(j.record.Partition); ok && g == j.record.Target {
		// Idempotent replay: the authoritative record already reflects
		// the move, so the broadcast step is skipped entirely.
		j.mu.Lock()
		j.record.State = kvdomain.MigrationSucceeded
		j.mu.Unlock()
		c.advance(j, stepDone, 0)
		return
	}

	if err := c.updater.ProposePartitionAssign(j.record.Partition, j.record.Target); err != nil {
		c.advance(j, stepTopoUpdate, c.cfg.AdminFailoverDelay)
		return
	}
	c.advance(j, stepTopoBroadcast, 0)
}

func (c *Coordinator) doTopoBroadcast(ctx context.Context, j *job) {
	j.mu.Lock()
	cancelRequested := j.cancelRequested
	j.mu.Unlock()
	if cancelRequested {
		j.mu.Lock()
		j.record.State = kvdomain.MigrationCancelled
		j.record.Cause = kvdomain.Wrap(kvdomain.ErrInterrupted, nil, "")
		j.mu.Unlock()
		c.advance(j, stepDone, 0)
		return
	}

	if err := c.broadcaster.Broadcast(ctx, c.topo.Topology()); err != nil {
		c.advance(j, stepTopoBroadcast, c.cfg.ServiceUnreachableDelay)
		return
	}

	j.mu.Lock()
	j.record.State = kvdomain.MigrationSucceeded
	j.mu.Unlock()
	c.advance(j, stepDone, 0)
}

func (c *Coordinator) doCleanup(ctx context.Context, j *job) {
	ep, ok := c.resolveMaster(j.record.Target)
	if !ok {
		c.advance(j, stepCleanup, c.cfg.RNFailoverDelay)
		return
	}

	resp, err := c.transport.CanCancel(ctx, ep, j.record.Partition)
	if err != nil {
		c.advance(j, stepCleanup, c.cfg.RNFailoverDelay)
		return
	}

	switch resp.Status {
	case kvdomain.RemoteSucceeded:
		// The migration had already completed; finish it rather than
		// leaving the partition split between source and target.
		c.advance(j, stepTopoUpdate, 0)
	case kvdomain.RemoteError:
		if srcEp, ok := c.resolveMaster(j.record.Source); ok {
			_, _ = c.transport.Cancel(ctx, srcEp, j.record.Partition, j.record.Target)
		}
		j.mu.Lock()
		j.record.State = kvdomain.MigrationCancelled
		j.mu.Unlock()
		c.advance(j, stepDone, 0)
	default:
		c.advance(j, stepCleanup, c.cfg.CheckMigrationPeriod)
	}
}

func (c *Coordinator) finish(j *job) {
	c.locks.Release(j.record.Source, j.record.Target)

	c.mu.Lock()
	delete(c.jobs, j.record.Partition)
	c.mu.Unlock()

	j.mu.Lock()
	state := j.record.State
	j.mu.Unlock()

	c.logger.Info("migration finished",
		"partition", j.record.Partition,
		"source", j.record.Source,
		"target", j.record.Target,
		"state", state.String())

	close(j.done)
}
