package login

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

type fakeHandle struct {
	ep     kvdomain.Endpoint
	closed bool
}

func (h *fakeHandle) Endpoint() kvdomain.Endpoint { return h.ep }
func (h *fakeHandle) Close() error                { h.closed = true; return nil }

func TestManagerGetDialsOnceThenReuses(t *testing.T) {
	var dials int32
	m := NewManager(func(ep kvdomain.Endpoint) (Handle, error) {
		atomic.AddInt32(&dials, 1)
		return &fakeHandle{ep: ep}, nil
	})

	ep := kvdomain.Endpoint{Host: "10.0.0.1", Port: 7100}
	h1, err := m.Get(ep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := m.Get(ep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected second Get to reuse the cached handle")
	}
	if dials != 1 {
		t.Fatalf("dials = %d, want 1", dials)
	}
}

func TestManagerGetConcurrentSingleDial(t *testing.T) {
	var dials int32
	m := NewManager(func(ep kvdomain.Endpoint) (Handle, error) {
		atomic.AddInt32(&dials, 1)
		return &fakeHandle{ep: ep}, nil
	})

	ep := kvdomain.Endpoint{Host: "10.0.0.2", Port: 7200}
	const n = 32
	var wg sync.WaitGroup
	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			h, err := m.Get(ep)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			handles[idx] = h
		}(i)
	}
	wg.Wait()

	if dials != 1 {
		t.Fatalf("dials = %d, want exactly 1 across %d concurrent callers", dials, n)
	}
	for i, h := range handles {
		if h != handles[0] {
			t.Fatalf("handles[%d] differs from handles[0]; want exactly one handle", i)
		}
	}
}

func TestManagerGetRetriesAfterDialFailure(t *testing.T) {
	var attempt int32
	m := NewManager(func(ep kvdomain.Endpoint) (Handle, error) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return &fakeHandle{ep: ep}, nil
	})

	ep := kvdomain.Endpoint{Host: "10.0.0.3", Port: 7300}
	if _, err := m.Get(ep); err == nil {
		t.Fatal("expected first dial to fail")
	}
	h, err := m.Get(ep)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if h == nil {
		t.Fatal("expected non-nil handle on retry")
	}
}

func TestManagerEvictClosesAndForgets(t *testing.T) {
	m := NewManager(func(ep kvdomain.Endpoint) (Handle, error) {
		return &fakeHandle{ep: ep}, nil
	})

	ep := kvdomain.Endpoint{Host: "10.0.0.4", Port: 7400}
	h, err := m.Get(ep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := m.Evict(ep); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if !h.(*fakeHandle).closed {
		t.Fatal("expected evicted handle to be closed")
	}
	if m.Count() != 0 {
		t.Fatalf("Count() after evict = %d, want 0", m.Count())
	}
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(func(ep kvdomain.Endpoint) (Handle, error) {
		return &fakeHandle{ep: ep}, nil
	})

	eps := []kvdomain.Endpoint{
		{Host: "10.0.0.5", Port: 1},
		{Host: "10.0.0.5", Port: 2},
	}
	var handles []Handle
	for _, ep := range eps {
		h, err := m.Get(ep)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		handles = append(handles, h)
	}

	if err := m.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	for i, h := range handles {
		if !h.(*fakeHandle).closed {
			t.Fatalf("handle %d not closed after CloseAll", i)
		}
	}
	if m.Count() != 0 {
		t.Fatalf("Count() after CloseAll = %d, want 0", m.Count())
	}
}
