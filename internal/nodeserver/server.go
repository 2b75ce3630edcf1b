package nodeserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// MigrationControlHandler serves the migration-control calls a remote
// master issues against this node. Only a group's current
// master answers these; nodeserver forwards the decoded request and
// writes back whatever response the handler produces.
type MigrationControlHandler interface {
	HandleMigrationControl(ctx context.Context, req *wire.MigrationControlRequest) *wire.MigrationControlResponse
}

// TopologyReceiver is handed each topology snapshot pushed by the
// migration coordinator's Broadcaster, wrapped in a Delta. What it applies
// is up to the receiver: clusterstate.Store, which the server binary
// wires in, applies only group-state deltas and ignores the topology.
type TopologyReceiver interface {
	AbsorbDelta(kvdomain.Delta)
}

// PartitionPullHandler serves a source group master's side of the data
// transfer a migration's target master pulls during OpStartMigration: the
// partition's full key/value contents as this node currently holds them.
type PartitionPullHandler interface {
	HandlePartitionPull(ctx context.Context, req *wire.PartitionPullRequest) *wire.PartitionPullResponse
}

// Config tunes the per-connection accept loop.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the listener defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address:      address,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Server accepts framed connections and dispatches each frame to the
// Request handler or, if wired, the migration-control handler.
type Server struct {
	cfg       Config
	handler   *Handler
	migration MigrationControlHandler
	receiver  TopologyReceiver
	transfer  PartitionPullHandler
	logger    *slog.Logger

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer builds a Server. migration may be nil on a node that never
// acts as a group master (it will reply with an error to any
// MsgMigrationControl frame it receives). receiver may be nil on a node
// that only learns topology through its own replicated store. transfer may
// be nil, in which case partition-pull requests fail with a cause set.
func NewServer(cfg Config, handler *Handler, migration MigrationControlHandler, receiver TopologyReceiver, transfer PartitionPullHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, handler: handler, migration: migration, receiver: receiver, transfer: transfer, logger: logger}
}

// Start opens the listener and runs the accept loop in a background
// goroutine, returning once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	return nil
}

// Shutdown closes the listener and waits for in-flight connections to
// drain, or for ctx to expire first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	idleTimeout := s.cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		msgType, body, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("frame read error", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}

		respType, respBody, err := s.dispatch(ctx, msgType, body)
		if err != nil {
			s.logger.Debug("frame dispatch error", "remote", conn.RemoteAddr(), "error", err)
			return
		}

		if s.cfg.WriteTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
		if err := wire.WriteFrame(conn, respType, respBody); err != nil {
			s.logger.Debug("frame write error", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msgType wire.MsgType, body []byte) (wire.MsgType, []byte, error) {
	switch msgType {
	case wire.MsgRequest:
		req, err := wire.DecodeRequest(body)
		if err != nil {
			return 0, nil, err
		}
		resp := s.handler.Handle(ctx, req)
		respBody, err := wire.EncodeResponse(resp)
		if err != nil {
			return 0, nil, err
		}
		return wire.MsgResponse, respBody, nil

	case wire.MsgTopologyPush:
		topo, err := wire.DecodeTopology(body)
		if err != nil {
			return 0, nil, err
		}
		if s.receiver != nil {
			s.receiver.AbsorbDelta(kvdomain.Delta{Topology: topo})
		}
		return wire.MsgTopologyPushAck, nil, nil

	case wire.MsgMigrationControl:
		req, err := wire.DecodeMigrationControlRequest(body)
		if err != nil {
			return 0, nil, err
		}
		var resp *wire.MigrationControlResponse
		if s.migration != nil {
			resp = s.migration.HandleMigrationControl(ctx, req)
		} else {
			resp = &wire.MigrationControlResponse{
				Status: kvdomain.RemoteError,
				Detail: "this node does not serve migration control",
			}
		}
		return wire.MsgMigrationControlAck, wire.EncodeMigrationControlResponse(resp), nil

	case wire.MsgPartitionPull:
		req, err := wire.DecodePartitionPullRequest(body)
		if err != nil {
			return 0, nil, err
		}
		var resp *wire.PartitionPullResponse
		if s.transfer != nil {
			resp = s.transfer.HandlePartitionPull(ctx, req)
		} else {
			resp = &wire.PartitionPullResponse{
				Cause: kvdomain.Wrap(kvdomain.ErrWrongShard, nil, "this node does not serve partition transfer"),
			}
		}
		return wire.MsgPartitionPullAck, wire.EncodePartitionPullResponse(resp), nil

	default:
		return 0, nil, errUnknownFrame
	}
}

var errUnknownFrame = errors.New("nodeserver: unexpected frame type")
