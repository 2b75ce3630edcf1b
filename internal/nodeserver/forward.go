package nodeserver

import (
	"context"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
)

// rpcHandle is the login.Handle a dial actually returns, duck-typed the
// same way internal/dispatch's client matches its cached handles against
// a Call method.
type rpcHandle interface {
	login.Handle
	Call(req *kvdomain.Request) (*kvdomain.Response, error)
}

// RPCForwarder forwards a request to another node over a Handler's
// shared login.Manager, the Forwarder a Handler uses for its in-group
// "forward to current master" hop.
type RPCForwarder struct {
	logins *login.Manager
	topo   TopologySource
}

// NewRPCForwarder builds an RPCForwarder resolving destination endpoints
// from topo and dialing them through logins.
func NewRPCForwarder(logins *login.Manager, topo TopologySource) *RPCForwarder {
	return &RPCForwarder{logins: logins, topo: topo}
}

func (f *RPCForwarder) Forward(ctx context.Context, dest kvdomain.NodeID, req *kvdomain.Request) (*kvdomain.Response, error) {
	ep, ok := f.topo.Topology().EndpointFor(dest)
	if !ok {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "no endpoint for forward destination")
	}

	handle, err := f.logins.Get(ep)
	if err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "dial forward destination")
	}
	rpc, ok := handle.(rpcHandle)
	if !ok {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "cached handle does not support RPC calls")
	}

	resp, err := rpc.Call(req)
	if err != nil {
		_ = f.logins.Evict(ep)
		return nil, err
	}
	return resp, nil
}
