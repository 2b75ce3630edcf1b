package kvdomain

import (
	"errors"
	"testing"
)

func TestNewRequestInvariants(t *testing.T) {
	t.Run("write request gets durability not consistency", func(t *testing.T) {
		r, err := NewRequest(7, GroupID(NullID), true, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Durability == nil || r.Consistency != nil {
			t.Fatalf("write request invariant violated: %+v", r)
		}
	})

	t.Run("read request gets consistency not durability", func(t *testing.T) {
		r, err := NewRequest(7, GroupID(NullID), false, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Consistency == nil || r.Durability != nil {
			t.Fatalf("read request invariant violated: %+v", r)
		}
	})

	t.Run("rejects both partition and group set", func(t *testing.T) {
		_, err := NewRequest(7, 2, true, nil)
		if !errors.Is(err, ErrWrongShard) {
			t.Fatalf("expected ErrWrongShard, got %v", err)
		}
	})

	t.Run("rejects neither partition nor group set", func(t *testing.T) {
		_, err := NewRequest(PartitionID(NullID), GroupID(NullID), true, nil)
		if !errors.Is(err, ErrWrongShard) {
			t.Fatalf("expected ErrWrongShard, got %v", err)
		}
	})
}

func TestDecrementTTLBoundary(t *testing.T) {
	r := &Request{TTL: 0}
	if err := r.DecrementTTL(); !errors.Is(err, ErrTTLExceeded) {
		t.Fatalf("expected TTL_EXCEEDED at TTL=0, got %v", err)
	}

	r = &Request{TTL: 3}
	for i := 0; i < 3; i++ {
		if err := r.DecrementTTL(); err != nil {
			t.Fatalf("unexpected error on decrement %d: %v", i, err)
		}
	}
	if err := r.DecrementTTL(); !errors.Is(err, ErrTTLExceeded) {
		t.Fatalf("expected TTL_EXCEEDED after exhausting budget, got %v", err)
	}
}

func TestUpdateForwardingChain(t *testing.T) {
	t.Run("within group appends", func(t *testing.T) {
		r := &Request{}
		if err := r.UpdateForwardingChain(3, true, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := r.UpdateForwardingChain(1, true, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := r.ForwardingChain, []uint8{3, 1}; !equalBytes(got, want) {
			t.Fatalf("chain = %v, want %v", got, want)
		}
	})

	t.Run("rejects loop", func(t *testing.T) {
		r := &Request{ForwardingChain: []uint8{3, 1}}
		if err := r.UpdateForwardingChain(3, true, 5); !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected UNREACHABLE on loop, got %v", err)
		}
	})

	t.Run("rejects chain at group size", func(t *testing.T) {
		r := &Request{ForwardingChain: []uint8{0, 1, 2}}
		if err := r.UpdateForwardingChain(3, true, 3); !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected UNREACHABLE at group size, got %v", err)
		}
	})

	t.Run("cross group resets chain", func(t *testing.T) {
		r := &Request{ForwardingChain: []uint8{0, 1, 2}}
		if err := r.UpdateForwardingChain(0, false, 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.ForwardingChain) != 0 {
			t.Fatalf("expected chain reset, got %v", r.ForwardingChain)
		}
	})
}

func TestNeedsMaster(t *testing.T) {
	write := &Request{Write: true}
	if !write.NeedsMaster() {
		t.Fatal("write request should need master")
	}

	absolute := &Request{Consistency: &ConsistencyPolicy{Level: ConsistencyAbsolute}}
	if !absolute.NeedsMaster() {
		t.Fatal("ABSOLUTE consistency should need master")
	}

	relaxed := &Request{Consistency: &ConsistencyPolicy{Level: ConsistencyNoneRequired}}
	if relaxed.NeedsMaster() {
		t.Fatal("relaxed read should not need master")
	}
	relaxed.SetNeedsMaster()
	if !relaxed.NeedsMaster() {
		t.Fatal("server-set needs-master flag should force master routing")
	}
}

func equalBytes(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
