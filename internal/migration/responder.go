package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// LocalStore is the subset of storage.Environment a Responder needs: write
// the pulled data in (as a migration's target) and read the locally held
// data back out (as a migration's source, serving a peer's pull).
type LocalStore interface {
	Put(ctx context.Context, p kvdomain.PartitionID, key, value []byte) (kvdomain.CommitToken, error)
	Scan(ctx context.Context, p kvdomain.PartitionID, fn func(key, value []byte) bool) error
}

// pullHandle is the subset of login.Handle a dial for partition transfer
// actually returns.
type pullHandle interface {
	login.Handle
	PullPartition(req *wire.PartitionPullRequest, timeout time.Duration) (*wire.PartitionPullResponse, error)
}

// remoteJob tracks one partition this node is currently the target of a
// migration for, from the moment OpStartMigration is accepted through
// either RemoteSucceeded or RemoteError.
type remoteJob struct {
	status kvdomain.RemoteMigrationStatus
	cause  *kvdomain.Error
	cancel context.CancelFunc
}

// Responder implements nodeserver.MigrationControlHandler and
// nodeserver.PartitionPullHandler on a group's master: the server side of
// the four master-to-master calls (start/check/cancel/can-cancel), plus
// the data transfer itself — REQUEST_SEND/STATUS_POLL name the control
// protocol but leave the actual partition copy to whatever serves the
// target's pull.
//
// A Responder is symmetric: the same instance answers OpStartMigration as
// a target (pulling from the source) and HandlePartitionPull as a source
// (serving a target's pull), since either role can fall to any node that
// happens to hold group mastership.
type Responder struct {
	cfg     Config
	local   LocalStore
	topo    TopologyView
	logins  *login.Manager
	logger  Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	jobs map[kvdomain.PartitionID]*remoteJob
}

// NewResponder builds a Responder. logins should share the dial function
// used for RPCTransport/RPCBroadcaster, since all three talk to the same
// nodeserver endpoints. The data-transfer step paces itself against
// cfg.TransferRateBytesPerSec; a non-positive value disables pacing.
func NewResponder(cfg Config, local LocalStore, topo TopologyView, logins *login.Manager, logger Logger) *Responder {
	var limiter *rate.Limiter
	if cfg.TransferRateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TransferRateBytesPerSec), int(cfg.TransferRateBytesPerSec))
	}
	return &Responder{
		cfg:     cfg,
		local:   local,
		topo:    topo,
		logins:  logins,
		logger:  logger,
		limiter: limiter,
		jobs:    make(map[kvdomain.PartitionID]*remoteJob),
	}
}

// HandleMigrationControl implements nodeserver.MigrationControlHandler.
func (r *Responder) HandleMigrationControl(ctx context.Context, req *wire.MigrationControlRequest) *wire.MigrationControlResponse {
	switch req.Op {
	case wire.OpStartMigration:
		return r.start(req.Partition, req.SourceGroup)
	case wire.OpCheckMigration:
		return r.check(req.Partition)
	case wire.OpCancelMigration:
		return r.cancelJob(req.Partition)
	case wire.OpCanCancel:
		return r.canCancel(req.Partition)
	default:
		return &wire.MigrationControlResponse{
			Status: kvdomain.RemoteUnknown,
			Detail: fmt.Sprintf("unsupported migration op %d", req.Op),
		}
	}
}

func (r *Responder) start(partition kvdomain.PartitionID, source kvdomain.GroupID) *wire.MigrationControlResponse {
	r.mu.Lock()
	if j, ok := r.jobs[partition]; ok {
		status, cause := j.status, j.cause
		r.mu.Unlock()
		return statusResponse(status, cause)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &remoteJob{status: kvdomain.RemotePending, cancel: cancel}
	r.jobs[partition] = j
	r.mu.Unlock()

	go r.runTransfer(jobCtx, partition, source, j)

	return statusResponse(kvdomain.RemotePending, nil)
}

func (r *Responder) check(partition kvdomain.PartitionID) *wire.MigrationControlResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[partition]
	if !ok {
		return statusResponse(kvdomain.RemoteUnknown, nil)
	}
	return statusResponse(j.status, j.cause)
}

func (r *Responder) cancelJob(partition kvdomain.PartitionID) *wire.MigrationControlResponse {
	r.mu.Lock()
	j, ok := r.jobs[partition]
	r.mu.Unlock()
	if !ok {
		return statusResponse(kvdomain.RemoteSucceeded, nil)
	}

	j.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if j.status == kvdomain.RemoteSucceeded {
		// The copy finished before the cancel landed; nothing left to
		// stop, and undoing a completed transfer isn't safe here.
		return statusResponse(kvdomain.RemoteError, kvdomain.Wrap(kvdomain.ErrInterrupted, nil, "transfer already completed"))
	}
	delete(r.jobs, partition)
	return statusResponse(kvdomain.RemoteSucceeded, nil)
}

func (r *Responder) canCancel(partition kvdomain.PartitionID) *wire.MigrationControlResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[partition]
	if ok && j.status == kvdomain.RemoteSucceeded {
		// Already completed: the coordinator finishes the plan instead of
		// cancelling it.
		return statusResponse(kvdomain.RemoteSucceeded, nil)
	}
	return statusResponse(kvdomain.RemoteError, kvdomain.Wrap(kvdomain.ErrInterrupted, nil, "transfer not completed"))
}

func statusResponse(status kvdomain.RemoteMigrationStatus, cause *kvdomain.Error) *wire.MigrationControlResponse {
	resp := &wire.MigrationControlResponse{Status: status, Cause: cause}
	if cause != nil {
		resp.Detail = cause.Message
	}
	return resp
}

// runTransfer pulls every key/value under partition from source's current
// master and writes it into local storage, marking the job terminal on
// completion.
func (r *Responder) runTransfer(ctx context.Context, partition kvdomain.PartitionID, source kvdomain.GroupID, j *remoteJob) {
	r.setStatus(partition, kvdomain.RemoteRunning, nil)

	if err := r.pullAndApply(ctx, partition, source); err != nil {
		cause := kvdomain.Wrap(kvdomain.ErrMigrationError, err, "partition transfer failed")
		if r.logger != nil {
			r.logger.Warn("partition transfer failed", "partition", partition, "source_group", source, "error", err)
		}
		r.setStatus(partition, kvdomain.RemoteError, cause)
		return
	}

	r.setStatus(partition, kvdomain.RemoteSucceeded, nil)
}

func (r *Responder) pullAndApply(ctx context.Context, partition kvdomain.PartitionID, source kvdomain.GroupID) error {
	gs := r.topo.GroupState(source)
	if !gs.HasMaster {
		return fmt.Errorf("responder: source group %v has no known master", source)
	}
	ep, ok := r.topo.Topology().EndpointFor(gs.Master)
	if !ok {
		return fmt.Errorf("responder: no endpoint for source node %s", gs.Master)
	}

	handle, err := r.logins.Get(ep)
	if err != nil {
		return fmt.Errorf("responder: dial source %s: %w", ep, err)
	}
	rpc, ok := handle.(pullHandle)
	if !ok {
		return fmt.Errorf("responder: cached handle for %s does not support partition pull", ep)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := rpc.PullPartition(&wire.PartitionPullRequest{Partition: partition}, r.cfg.CallTimeout)
	if err != nil {
		_ = r.logins.Evict(ep)
		return fmt.Errorf("responder: pull partition %v from %s: %w", partition, ep, err)
	}
	if resp.Cause != nil {
		return fmt.Errorf("responder: source refused pull: %w", resp.Cause)
	}

	for _, kv := range resp.Pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.limiter != nil {
			n := len(kv.Key) + len(kv.Value)
			if err := r.limiter.WaitN(ctx, n); err != nil {
				return fmt.Errorf("responder: rate limiter: %w", err)
			}
		}
		if _, err := r.local.Put(ctx, partition, kv.Key, kv.Value); err != nil {
			return fmt.Errorf("responder: apply key during transfer: %w", err)
		}
	}

	return nil
}

func (r *Responder) setStatus(partition kvdomain.PartitionID, status kvdomain.RemoteMigrationStatus, cause *kvdomain.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[partition]; ok {
		j.status = status
		j.cause = cause
	}
}

// HandlePartitionPull implements nodeserver.PartitionPullHandler, serving
// a target master's pull of everything this node currently holds under
// one partition.
func (r *Responder) HandlePartitionPull(ctx context.Context, req *wire.PartitionPullRequest) *wire.PartitionPullResponse {
	var pairs []wire.KVPair
	err := r.local.Scan(ctx, req.Partition, func(key, value []byte) bool {
		k := append([]byte(nil), key...)
		v := append([]byte(nil), value...)
		pairs = append(pairs, wire.KVPair{Key: k, Value: v})
		return true
	})
	if err != nil {
		return &wire.PartitionPullResponse{
			Cause: kvdomain.Wrap(kvdomain.ErrWrongShard, err, "scan failed during partition pull"),
		}
	}
	return &wire.PartitionPullResponse{Pairs: pairs}
}
