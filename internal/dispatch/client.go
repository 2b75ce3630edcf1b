package dispatch

import (
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
	"github.com/kvgrid/kvgrid/internal/rpcpool"
)

// defaultMaxAttempts bounds the client-side retry loop as a backstop
// against a topology that never stabilizes, independent of the
// deadline req.TimeoutMS establishes.
const defaultMaxAttempts = 8

// TopologySource is the subset of clusterstate.Store the dispatcher
// needs: a readable snapshot, a per-group master lookup, and a sink for
// the deltas a Response carries back. Spelled as an interface here
// (rather than importing clusterstate) so dispatch stays a leaf package
// with no dependency on the Raft-backed topology map.
type TopologySource interface {
	Topology() *kvdomain.Topology
	GroupState(kvdomain.GroupID) kvdomain.GroupState
	AbsorbDelta(kvdomain.Delta)
}

// ReauthFunc re-authenticates req's dispatcher, mutating req.Auth in
// place, after a server returns AUTH_REQUIRED. Dispatch retries an auth
// failure exactly once.
type ReauthFunc func(req *kvdomain.Request) error

// rpcHandle is the login.Handle a dial actually returns: one with a
// Call method, satisfied by *rpcpool.Client.
type rpcHandle interface {
	login.Handle
	Call(req *kvdomain.Request) (*kvdomain.Response, error)
}

// loginHandle adapts an *rpcpool.Client (transport-level, string
// address) into a login.Handle (domain-level, kvdomain.Endpoint),
// bridging the two packages' separate concerns: the handle cache sits
// on top of the framed RPC connection.
type loginHandle struct {
	*rpcpool.Client
	ep kvdomain.Endpoint
}

func (h *loginHandle) Endpoint() kvdomain.Endpoint { return h.ep }

// DialFor returns a login.DialFunc that dials a single framed
// connection per endpoint via rpcpool.Dial.
func DialFor(timeout time.Duration) login.DialFunc {
	return func(ep kvdomain.Endpoint) (login.Handle, error) {
		c, err := rpcpool.Dial(ep.String(), timeout)
		if err != nil {
			return nil, err
		}
		return &loginHandle{Client: c, ep: ep}, nil
	}
}

// Client is the client-side Request Dispatcher: it resolves a Request
// to a destination over the current topology, sends it, and retries
// according to the failure kind until it gets an answer, exhausts its
// attempt budget, or runs past the request's own deadline.
type Client struct {
	logins      *login.Manager
	topo        TopologySource
	reauth      ReauthFunc
	maxAttempts int
}

// NewClient builds a Client. reauth may be nil, in which case an
// AUTH_REQUIRED response is surfaced to the caller unretried.
func NewClient(logins *login.Manager, topo TopologySource, reauth ReauthFunc) *Client {
	return &Client{logins: logins, topo: topo, reauth: reauth, maxAttempts: defaultMaxAttempts}
}

// Dispatch sends req to its resolved destination, retrying on failure: a
// connection failure refreshes topology and retries; a
// WRONG_SHARD/STALE_TOPOLOGY response absorbs the attached delta and
// retries; NOT_MASTER re-routes to the indicated master and retries;
// AUTH_REQUIRED re-authenticates once and retries; any other failure is
// surfaced as-is. Retrying stops at whichever comes first: the attempt
// cap, or req.TimeoutMS measured wall-clock from the first attempt — a
// request that keeps failing past its own deadline is surfaced as
// ErrTimeout rather than kept alive by the attempt budget.
func (c *Client) Dispatch(req *kvdomain.Request) (*kvdomain.Response, error) {
	reauthed := false

	var deadline time.Time
	hasDeadline := req.TimeoutMS > 0
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(req.TimeoutMS) * time.Millisecond)
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if hasDeadline && time.Now().After(deadline) {
			return nil, kvdomain.Wrap(kvdomain.ErrTimeout, nil, "dispatch deadline exceeded")
		}

		dest, err := SelectDestination(c.topo.Topology(), c.topo.GroupState, req)
		if err != nil {
			return nil, err
		}

		handle, err := c.logins.Get(dest.Endpoint)
		if err != nil {
			continue
		}
		rpc, ok := handle.(rpcHandle)
		if !ok {
			return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, nil, "cached handle does not support RPC calls")
		}

		resp, err := rpc.Call(req)
		if err != nil {
			_ = c.logins.Evict(dest.Endpoint)
			if kvdomain.IsDomainError(err) {
				code := kvdomain.GetErrorCode(err)
				if code == kvdomain.ErrUnreachable.Code || code == kvdomain.ErrTimeout.Code {
					continue
				}
			}
			return nil, err
		}

		if resp.Delta != nil {
			c.topo.AbsorbDelta(*resp.Delta)
		}

		if resp.OK() {
			return resp, nil
		}

		switch resp.Err.Code {
		case kvdomain.ErrWrongShard.Code, kvdomain.ErrStaleTopology.Code:
			continue
		case kvdomain.ErrNotMaster.Code:
			req.SetNeedsMaster()
			continue
		case kvdomain.ErrAuthRequired.Code:
			if reauthed || c.reauth == nil {
				return resp, nil
			}
			if err := c.reauth(req); err != nil {
				return resp, nil
			}
			reauthed = true
			continue
		default:
			return resp, nil
		}
	}

	return nil, kvdomain.Wrap(kvdomain.ErrTimeout, nil, "dispatch retry budget exhausted")
}
