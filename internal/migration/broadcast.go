package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
)

// pushHandle is the subset of login.Handle a dial for topology push
// actually returns.
type pushHandle interface {
	login.Handle
	PushTopology(topo *kvdomain.Topology, timeout time.Duration) error
}

// RPCBroadcaster implements Broadcaster by pushing the topology snapshot
// to every node in every group over the same login.Manager handle cache
// used for migration control calls. It pushes to all members rather than
// stopping at a quorum count: a stray push failure to one replica is
// harmless, since that replica's own topology store eventually catches
// up, and there is no cheap way to know which subset would have
// constituted "enough".
type RPCBroadcaster struct {
	logins  *login.Manager
	timeout time.Duration
	logger  Logger
}

// Logger is the minimal logging surface RPCBroadcaster needs, satisfied
// by *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewRPCBroadcaster builds a Broadcaster. logins should be the same
// manager used for RPCTransport, since both dial the same nodeserver
// endpoints.
func NewRPCBroadcaster(logins *login.Manager, timeout time.Duration, logger Logger) *RPCBroadcaster {
	return &RPCBroadcaster{logins: logins, timeout: timeout, logger: logger}
}

func (b *RPCBroadcaster) Broadcast(ctx context.Context, topo *kvdomain.Topology) error {
	for _, members := range topo.Groups {
		for _, node := range members {
			ep, ok := topo.Nodes[node]
			if !ok {
				continue
			}
			if err := b.pushOne(ctx, ep, topo); err != nil && b.logger != nil {
				b.logger.Warn("topology broadcast push failed", "node", node.String(), "endpoint", ep.String(), "error", err)
			}
		}
	}
	return nil
}

func (b *RPCBroadcaster) pushOne(ctx context.Context, ep kvdomain.Endpoint, topo *kvdomain.Topology) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handle, err := b.logins.Get(ep)
	if err != nil {
		return fmt.Errorf("dial %s: %w", ep, err)
	}

	rpc, ok := handle.(pushHandle)
	if !ok {
		return fmt.Errorf("cached handle for %s does not support topology push", ep)
	}

	if err := rpc.PushTopology(topo, b.timeout); err != nil {
		_ = b.logins.Evict(ep)
		return err
	}
	return nil
}
