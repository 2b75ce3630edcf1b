package dispatch

import (
	"testing"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

func TestPrepareForwardWithinGroupAppendsChain(t *testing.T) {
	req, _ := kvdomain.NewRequest(0, kvdomain.GroupID(kvdomain.NullID), true, []byte("v"))
	req.TTL = 3

	from := kvdomain.NodeID{Group: 1, Index: 0}
	dest := Destination{Group: 1, Node: kvdomain.NodeID{Group: 1, Index: 1}}

	if err := PrepareForward(req, from, dest, 3); err != nil {
		t.Fatalf("PrepareForward: %v", err)
	}
	if req.TTL != 2 {
		t.Fatalf("TTL = %d, want 2", req.TTL)
	}
	if len(req.ForwardingChain) != 1 || req.ForwardingChain[0] != 0 {
		t.Fatalf("chain = %v, want [0]", req.ForwardingChain)
	}
}

func TestPrepareForwardRejectsLoop(t *testing.T) {
	req, _ := kvdomain.NewRequest(0, kvdomain.GroupID(kvdomain.NullID), true, []byte("v"))
	req.TTL = 5
	req.ForwardingChain = []uint8{3, 1}

	from := kvdomain.NodeID{Group: 1, Index: 3}
	dest := Destination{Group: 1, Node: kvdomain.NodeID{Group: 1, Index: 1}}

	err := PrepareForward(req, from, dest, 4)
	if err == nil || kvdomain.GetErrorCode(err) != kvdomain.ErrUnreachable.Code {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestPrepareForwardFailsTTLBeforeTouchingChain(t *testing.T) {
	req, _ := kvdomain.NewRequest(0, kvdomain.GroupID(kvdomain.NullID), true, []byte("v"))
	req.TTL = 0
	req.ForwardingChain = []uint8{0}

	from := kvdomain.NodeID{Group: 1, Index: 1}
	dest := Destination{Group: 1, Node: kvdomain.NodeID{Group: 1, Index: 2}}

	err := PrepareForward(req, from, dest, 4)
	if err == nil || kvdomain.GetErrorCode(err) != kvdomain.ErrTTLExceeded.Code {
		t.Fatalf("err = %v, want ErrTTLExceeded", err)
	}
	if len(req.ForwardingChain) != 1 {
		t.Fatalf("chain mutated despite TTL failure: %v", req.ForwardingChain)
	}
}

func TestPrepareForwardAcrossGroupResetsChain(t *testing.T) {
	req, _ := kvdomain.NewRequest(0, kvdomain.GroupID(kvdomain.NullID), true, []byte("v"))
	req.TTL = 5
	req.ForwardingChain = []uint8{0, 1}

	from := kvdomain.NodeID{Group: 1, Index: 1}
	dest := Destination{Group: 2, Node: kvdomain.NodeID{Group: 2, Index: 0}}

	if err := PrepareForward(req, from, dest, 1); err != nil {
		t.Fatalf("PrepareForward: %v", err)
	}
	if req.ForwardingChain != nil {
		t.Fatalf("chain = %v, want nil after cross-group forward", req.ForwardingChain)
	}
}
