package nodeserver

import (
	"context"
	"log/slog"

	"github.com/kvgrid/kvgrid/internal/dispatch"
	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/kvop"
	"github.com/kvgrid/kvgrid/internal/storage"
)

// TopologySource resolves the current topology and a group's master,
// mirroring internal/dispatch's lookup shapes without importing
// clusterstate directly (keeps this package testable against a plain
// fake rather than a running Raft group).
type TopologySource interface {
	Topology() *kvdomain.Topology
	GroupState(kvdomain.GroupID) kvdomain.GroupState
}

// Authenticator validates a Request's AuthContext. A nil Authenticator on
// Handler means the node accepts every request unauthenticated (used by
// the local socket listener's emergency-access path, which skips
// API-key auth entirely).
type Authenticator interface {
	Authenticate(ctx context.Context, auth *kvdomain.AuthContext) error
}

// Forwarder sends a request on to another node within the same group
// and returns its Response. A nil Forwarder on Handler means this node
// never attempts an in-group forward: it just reports NOT_MASTER and
// lets the client dispatcher re-route on its next attempt.
type Forwarder interface {
	Forward(ctx context.Context, dest kvdomain.NodeID, req *kvdomain.Request) (*kvdomain.Response, error)
}

// Handler executes a decoded Request against the local Environment and
// reports any routing correction the caller should absorb before its
// next attempt.
type Handler struct {
	env     *storage.Environment
	topo    TopologySource
	self    kvdomain.NodeID
	auth    Authenticator
	forward Forwarder
	logger  *slog.Logger
}

// NewHandler builds a Handler. auth and forward may both be nil (see
// Authenticator and Forwarder).
func NewHandler(env *storage.Environment, topo TopologySource, self kvdomain.NodeID, auth Authenticator, forward Forwarder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{env: env, topo: topo, self: self, auth: auth, forward: forward, logger: logger}
}

// Handle runs the full request path: validate, version-check,
// authenticate, reject group-addressed requests at this boundary (they
// must already have been resolved to a partition by the time a request
// reaches storage execution — group addressing only ever selects a
// destination node), check this node owns the partition's group and, if
// the request needs one, that this node is master — forwarding
// in-group to the current master when it isn't, rather than always
// bouncing the caller — then dispatch the decoded payload to the
// Environment.
func (h *Handler) Handle(ctx context.Context, req *kvdomain.Request) *kvdomain.Response {
	if err := req.Validate(); err != nil {
		return kvdomain.NewErrorResponse(err.(*kvdomain.Error), nil)
	}

	if req.SerialVersion > kvdomain.SerialVersion {
		return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrUnsupportedVersion, nil, ""), nil)
	}

	if h.auth != nil {
		if err := h.auth.Authenticate(ctx, req.Auth); err != nil {
			return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrAuthRequired, err, ""), nil)
		}
	}

	if req.Partition.IsNull() {
		// A group-addressed request reaching storage execution means a
		// forwarding step upstream failed to resolve it to a partition
		// first; there is no partition-scoped Environment call it could
		// make here.
		return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrWrongShard, nil,
			"request must be resolved to a partition before storage execution"), nil)
	}

	topo := h.topo.Topology()
	group, owned := topo.GroupFor(req.Partition)
	if !owned || !h.ownsGroup(group) {
		return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrWrongShard, nil, ""), h.deltaFor(req, topo, kvdomain.GroupID(kvdomain.NullID)))
	}

	if req.NeedsMaster() {
		gs := h.topo.GroupState(group)
		if !gs.HasMaster || gs.Master != h.self {
			if resp := h.forwardToMaster(ctx, req, topo, group, gs); resp != nil {
				return resp
			}
			return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrNotMaster, nil, ""), h.deltaFor(req, topo, group))
		}
	}

	result, token, err := h.execute(ctx, req)
	if err != nil {
		if domainErr, ok := err.(*kvdomain.Error); ok {
			return kvdomain.NewErrorResponse(domainErr, h.deltaFor(req, topo, group))
		}
		return kvdomain.NewErrorResponse(kvdomain.Wrap(kvdomain.ErrUnreachable, err, "local storage error"), h.deltaFor(req, topo, group))
	}

	resp := kvdomain.NewResultResponse(result, token)
	resp.Delta = h.deltaFor(req, topo, group)
	return resp
}

func (h *Handler) execute(ctx context.Context, req *kvdomain.Request) ([]byte, *kvdomain.CommitToken, error) {
	op, key, value, err := kvop.Decode(req.Payload)
	if err != nil {
		return nil, nil, err
	}

	switch op {
	case kvop.OpGet:
		result, err := h.env.Get(ctx, req.Partition, key)
		if err != nil {
			return nil, nil, err
		}
		return result, nil, nil
	case kvop.OpPut:
		tok, err := h.env.Put(ctx, req.Partition, key, value)
		if err != nil {
			return nil, nil, err
		}
		return nil, &tok, nil
	case kvop.OpDelete:
		tok, err := h.env.Delete(ctx, req.Partition, key)
		if err != nil {
			return nil, nil, err
		}
		return nil, &tok, nil
	default:
		return nil, nil, kvdomain.Wrap(kvdomain.ErrWrongShard, nil, "unknown operation")
	}
}

// forwardToMaster attempts the in-group forward to the current master
// for a request this node cannot satisfy itself. The TTL and
// forwarding-chain checks run before any network call is made, so a
// request already carrying a loop or an over-length chain is rejected
// right here rather than being handed off or executed. Returns nil when
// there's no Forwarder wired or no known master to forward to, leaving
// the caller to fall back to its own NOT_MASTER response.
func (h *Handler) forwardToMaster(ctx context.Context, req *kvdomain.Request, topo *kvdomain.Topology, group kvdomain.GroupID, gs kvdomain.GroupState) *kvdomain.Response {
	if h.forward == nil || !gs.HasMaster {
		return nil
	}

	dest := dispatch.Destination{Group: group}
	groupSize := len(topo.Groups[group])
	if err := dispatch.PrepareForward(req, h.self, dest, groupSize); err != nil {
		domainErr, ok := err.(*kvdomain.Error)
		if !ok {
			domainErr = kvdomain.Wrap(kvdomain.ErrUnreachable, err, "")
		}
		return kvdomain.NewErrorResponse(domainErr, h.deltaFor(req, topo, group))
	}

	resp, err := h.forward.Forward(ctx, gs.Master, req)
	if err != nil {
		return nil
	}
	return resp
}

// ownsGroup reports whether group is the group this node belongs to.
// kvgrid nodes are single-group members, so ownership reduces to a
// direct comparison against self.Group.
func (h *Handler) ownsGroup(group kvdomain.GroupID) bool {
	return h.self.Group == group
}

// deltaFor attaches a topology and/or group-state delta when the
// caller's declared sequence number is behind this node's view, so a
// caller that wasn't necessarily wrong still gets to refresh its cache
// on a success response, not only on WRONG_SHARD/NOT_MASTER failures.
func (h *Handler) deltaFor(req *kvdomain.Request, topo *kvdomain.Topology, group kvdomain.GroupID) *kvdomain.Delta {
	var delta kvdomain.Delta
	has := false

	if topo.Seq > req.TopoSeq {
		delta.Topology = topo
		has = true
	}
	if !group.IsNull() {
		gs := h.topo.GroupState(group)
		delta.GroupState = &gs
		has = true
	}

	if !has {
		return nil
	}
	return &delta
}
