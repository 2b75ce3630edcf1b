package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// Transport is the set of master-to-master calls the coordinator issues
// against a group's current master: start-migration, check-migration,
// cancel, and can-cancel. Spelled as an interface, in the style of
// internal/dispatch's TopologySource, so the state machine in
// coordinator.go can be tested against a fake without a real connection.
type Transport interface {
	StartMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, source kvdomain.GroupID) (*wire.MigrationControlResponse, error)
	CheckMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error)
	Cancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, target kvdomain.GroupID) (*wire.MigrationControlResponse, error)
	CanCancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error)
}

// rpcHandle is the subset of login.Handle a dial for migration control
// actually returns, mirroring internal/dispatch's own rpcHandle shape.
type rpcHandle interface {
	login.Handle
	CallMigrationControl(req *wire.MigrationControlRequest, timeout time.Duration) (*wire.MigrationControlResponse, error)
}

// RPCTransport implements Transport over a login.Manager-cached framed
// connection per endpoint, the same pattern internal/dispatch uses for
// client requests, applied here to the master-to-master control calls.
type RPCTransport struct {
	logins  *login.Manager
	timeout time.Duration
}

// NewRPCTransport builds a Transport. logins should be dialed with
// internal/dispatch.DialFor (or an equivalent DialFunc) so migration
// control calls share the same framed-connection handle cache used for
// ordinary client requests.
func NewRPCTransport(logins *login.Manager, timeout time.Duration) *RPCTransport {
	return &RPCTransport{logins: logins, timeout: timeout}
}

func (t *RPCTransport) call(ctx context.Context, ep kvdomain.Endpoint, req *wire.MigrationControlRequest) (*wire.MigrationControlResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, err := t.logins.Get(ep)
	if err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "dial migration control endpoint")
	}

	rpc, ok := handle.(rpcHandle)
	if !ok {
		return nil, fmt.Errorf("migration: cached handle for %s does not support migration control calls", ep)
	}

	resp, err := rpc.CallMigrationControl(req, t.timeout)
	if err != nil {
		_ = t.logins.Evict(ep)
		return nil, err
	}
	return resp, nil
}

func (t *RPCTransport) StartMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, source kvdomain.GroupID) (*wire.MigrationControlResponse, error) {
	return t.call(ctx, ep, &wire.MigrationControlRequest{Op: wire.OpStartMigration, Partition: partition, SourceGroup: source})
}

func (t *RPCTransport) CheckMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error) {
	return t.call(ctx, ep, &wire.MigrationControlRequest{Op: wire.OpCheckMigration, Partition: partition})
}

func (t *RPCTransport) Cancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, target kvdomain.GroupID) (*wire.MigrationControlResponse, error) {
	return t.call(ctx, ep, &wire.MigrationControlRequest{Op: wire.OpCancelMigration, Partition: partition, TargetGroup: target})
}

func (t *RPCTransport) CanCancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error) {
	return t.call(ctx, ep, &wire.MigrationControlRequest{Op: wire.OpCanCancel, Partition: partition})
}
