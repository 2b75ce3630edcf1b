package migration

import (
	"context"
	"testing"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/login"
)

type fakePushHandle struct {
	ep     kvdomain.Endpoint
	pushed []*kvdomain.Topology
	fail   bool
}

func (h *fakePushHandle) Endpoint() kvdomain.Endpoint { return h.ep }
func (h *fakePushHandle) Close() error                { return nil }
func (h *fakePushHandle) PushTopology(topo *kvdomain.Topology, timeout time.Duration) error {
	if h.fail {
		return context.DeadlineExceeded
	}
	h.pushed = append(h.pushed, topo)
	return nil
}

func newBroadcastTestTopology() *kvdomain.Topology {
	topo := kvdomain.NewTopology(1)
	topo.Groups[1] = []kvdomain.NodeID{{Group: 1, Index: 0}, {Group: 1, Index: 1}}
	topo.Nodes[kvdomain.NodeID{Group: 1, Index: 0}] = kvdomain.Endpoint{Host: "n0", Port: 1}
	topo.Nodes[kvdomain.NodeID{Group: 1, Index: 1}] = kvdomain.Endpoint{Host: "n1", Port: 1}
	return topo
}

func TestRPCBroadcaster_PushesToEveryGroupMember(t *testing.T) {
	handles := map[kvdomain.Endpoint]*fakePushHandle{}
	logins := login.NewManager(func(ep kvdomain.Endpoint) (login.Handle, error) {
		h := &fakePushHandle{ep: ep}
		handles[ep] = h
		return h, nil
	})

	b := NewRPCBroadcaster(logins, time.Second, nil)
	topo := newBroadcastTestTopology()

	if err := b.Broadcast(context.Background(), topo); err != nil {
		t.Fatalf("Broadcast returned error: %v", err)
	}

	for ep, h := range handles {
		if len(h.pushed) != 1 {
			t.Errorf("endpoint %s: got %d pushes, want 1", ep, len(h.pushed))
		}
	}
	if len(handles) != 2 {
		t.Errorf("dialed %d endpoints, want 2", len(handles))
	}
}

func TestRPCBroadcaster_SkipsFailuresWithoutAborting(t *testing.T) {
	failing := kvdomain.Endpoint{Host: "n0", Port: 1}
	logins := login.NewManager(func(ep kvdomain.Endpoint) (login.Handle, error) {
		return &fakePushHandle{ep: ep, fail: ep == failing}, nil
	})

	b := NewRPCBroadcaster(logins, time.Second, nil)
	topo := newBroadcastTestTopology()

	if err := b.Broadcast(context.Background(), topo); err != nil {
		t.Fatalf("Broadcast should tolerate a single unreachable node, got: %v", err)
	}
}
