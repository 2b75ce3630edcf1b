package rpcpool

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// Client is one framed connection to a peer node. A single Client only
// ever has one request in flight at a time (the wire protocol pairs one
// request frame with one response frame on the same connection); the
// Pool provides concurrency by holding several Clients per endpoint.
type Client struct {
	conn net.Conn
	addr string
	mu   sync.Mutex

	lastUsed time.Time
}

// Dial opens a new Client to addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, addr: addr, lastUsed: time.Now()}, nil
}

// Call sends req and waits for the paired response, honoring
// req.TimeoutMS as the round-trip deadline if set.
func (c *Client) Call(req *kvdomain.Request) (*kvdomain.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()

	if req.TimeoutMS > 0 {
		deadline := time.Now().Add(time.Duration(req.TimeoutMS) * time.Millisecond)
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("rpcpool: set deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	body, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: encode request: %w", err)
	}
	if err := wire.WriteFrame(c.conn, wire.MsgRequest, body); err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "write request frame")
	}

	msgType, respBody, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "read response frame")
	}
	if msgType != wire.MsgResponse {
		return nil, fmt.Errorf("rpcpool: unexpected frame type %d, want MsgResponse", msgType)
	}

	resp, err := wire.DecodeResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: decode response: %w", err)
	}
	return resp, nil
}

// CallMigrationControl sends a migration control request (start/check/
// cancel/can-cancel) and waits for its paired response.
func (c *Client) CallMigrationControl(req *wire.MigrationControlRequest, timeout time.Duration) (*wire.MigrationControlResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("rpcpool: set deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	body := wire.EncodeMigrationControlRequest(req)
	if err := wire.WriteFrame(c.conn, wire.MsgMigrationControl, body); err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "write migration control frame")
	}

	msgType, respBody, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "read migration control response frame")
	}
	if msgType != wire.MsgMigrationControlAck {
		return nil, fmt.Errorf("rpcpool: unexpected frame type %d, want MsgMigrationControlAck", msgType)
	}

	return wire.DecodeMigrationControlResponse(respBody)
}

// PushTopology sends a full topology snapshot as MsgTopologyPush and
// waits for the peer's ack, honoring timeout as the round-trip deadline.
func (c *Client) PushTopology(topo *kvdomain.Topology, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		if err := c.conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("rpcpool: set deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	body := wire.EncodeTopology(topo)
	if err := wire.WriteFrame(c.conn, wire.MsgTopologyPush, body); err != nil {
		return kvdomain.Wrap(kvdomain.ErrUnreachable, err, "write topology push frame")
	}

	msgType, _, err := wire.ReadFrame(c.conn)
	if err != nil {
		return kvdomain.Wrap(kvdomain.ErrUnreachable, err, "read topology push ack frame")
	}
	if msgType != wire.MsgTopologyPushAck {
		return fmt.Errorf("rpcpool: unexpected frame type %d, want MsgTopologyPushAck", msgType)
	}
	return nil
}

// PullPartition asks the peer (a source group's master) for every
// key/value currently stored under partition, as part of a migration's
// target master transferring the partition's data.
func (c *Client) PullPartition(req *wire.PartitionPullRequest, timeout time.Duration) (*wire.PartitionPullResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("rpcpool: set deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	body := wire.EncodePartitionPullRequest(req)
	if err := wire.WriteFrame(c.conn, wire.MsgPartitionPull, body); err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "write partition pull frame")
	}

	msgType, respBody, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, kvdomain.Wrap(kvdomain.ErrUnreachable, err, "read partition pull response frame")
	}
	if msgType != wire.MsgPartitionPullAck {
		return nil, fmt.Errorf("rpcpool: unexpected frame type %d, want MsgPartitionPullAck", msgType)
	}

	return wire.DecodePartitionPullResponse(respBody)
}

// Endpoint returns the dialed address.
func (c *Client) Endpoint() string { return c.addr }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// IdleSince reports how long this client has sat unused.
func (c *Client) IdleSince() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastUsed)
}
