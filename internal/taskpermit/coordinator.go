package taskpermit

import (
	"context"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// Coordinator is a bounded semaphore: at most N permits are held at
// once. Callers that block past a deadline or whose context is
// cancelled while waiting get kvdomain.ErrThreadInterrupted rather than
// an indefinite hang.
type Coordinator struct {
	sem chan struct{}
}

// New creates a Coordinator allowing at most maxConcurrent permits
// outstanding simultaneously.
func New(maxConcurrent int) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Coordinator{sem: make(chan struct{}, maxConcurrent)}
}

// Permit is held by a caller between Acquire and Release.
type Permit struct {
	sem chan struct{}
}

// Release returns the permit to the pool. Safe to call at most once.
func (p *Permit) Release() {
	<-p.sem
}

// Acquire blocks until a permit is free, ctx is cancelled, or timeout
// elapses (timeout <= 0 means wait only on ctx). Returns
// kvdomain.ErrThreadInterrupted if the wait was cut short.
func (c *Coordinator) Acquire(ctx context.Context, timeout time.Duration) (*Permit, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case c.sem <- struct{}{}:
		return &Permit{sem: c.sem}, nil
	case <-ctx.Done():
		return nil, kvdomain.Wrap(kvdomain.ErrThreadInterrupted, ctx.Err(), "acquire permit")
	}
}

// TryAcquire acquires a permit only if one is immediately available,
// without blocking.
func (c *Coordinator) TryAcquire() (*Permit, bool) {
	select {
	case c.sem <- struct{}{}:
		return &Permit{sem: c.sem}, true
	default:
		return nil, false
	}
}

// InUse returns the number of permits currently held.
func (c *Coordinator) InUse() int { return len(c.sem) }

// Capacity returns the total number of permits available.
func (c *Coordinator) Capacity() int { return cap(c.sem) }
