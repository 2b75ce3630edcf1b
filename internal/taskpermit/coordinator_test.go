package taskpermit

import (
	"context"
	"testing"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

func TestAcquireReleaseRespectsCapacity(t *testing.T) {
	c := New(2)

	p1, err := c.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire p1: %v", err)
	}
	p2, err := c.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire p2: %v", err)
	}
	if c.InUse() != 2 {
		t.Fatalf("InUse = %d, want 2", c.InUse())
	}

	if _, ok := c.TryAcquire(); ok {
		t.Fatal("TryAcquire should fail when at capacity")
	}

	p1.Release()
	if c.InUse() != 1 {
		t.Fatalf("InUse after release = %d, want 1", c.InUse())
	}

	p3, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire should succeed after a release")
	}
	p2.Release()
	p3.Release()
}

func TestAcquireTimesOutWithThreadInterrupted(t *testing.T) {
	c := New(1)
	p, err := c.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()

	_, err = c.Acquire(context.Background(), 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !kvdomain.IsDomainError(err) || kvdomain.GetErrorCode(err) != kvdomain.ErrThreadInterrupted.Code {
		t.Fatalf("error = %v, want kvdomain.ErrThreadInterrupted", err)
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	c := New(1)
	p, err := c.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Acquire(ctx, 0)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestCapacity(t *testing.T) {
	c := New(5)
	if c.Capacity() != 5 {
		t.Fatalf("Capacity() = %d, want 5", c.Capacity())
	}
}
