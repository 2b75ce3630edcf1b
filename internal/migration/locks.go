package migration

import (
	"sync"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// GroupLocks serializes concurrent migrations that touch the same group,
// either as source or target. Two locks are always acquired together, in
// ascending group-id order, so two migrations that share an endpoint
// (e.g. A->B and B->C) can never deadlock against each other.
type GroupLocks struct {
	mu    sync.Mutex
	held  map[kvdomain.GroupID]struct{}
	waitCh map[kvdomain.GroupID]chan struct{}
}

// NewGroupLocks returns an empty lock table.
func NewGroupLocks() *GroupLocks {
	return &GroupLocks{
		held:   make(map[kvdomain.GroupID]struct{}),
		waitCh: make(map[kvdomain.GroupID]chan struct{}),
	}
}

// Acquire blocks until both source and target are free, then holds both.
// Release must be called exactly once with the same pair to free them.
func (g *GroupLocks) Acquire(source, target kvdomain.GroupID) {
	first, second := source, target
	if second < first {
		first, second = second, first
	}

	g.acquireOne(first)
	if second != first {
		g.acquireOne(second)
	}
}

func (g *GroupLocks) acquireOne(group kvdomain.GroupID) {
	for {
		g.mu.Lock()
		if _, busy := g.held[group]; !busy {
			g.held[group] = struct{}{}
			g.mu.Unlock()
			return
		}
		ch, ok := g.waitCh[group]
		if !ok {
			ch = make(chan struct{})
			g.waitCh[group] = ch
		}
		g.mu.Unlock()
		<-ch
	}
}

// Release frees both locks, in the reverse order they were acquired in,
// and wakes any waiter for each.
func (g *GroupLocks) Release(source, target kvdomain.GroupID) {
	first, second := source, target
	if second < first {
		first, second = second, first
	}

	if second != first {
		g.releaseOne(second)
	}
	g.releaseOne(first)
}

func (g *GroupLocks) releaseOne(group kvdomain.GroupID) {
	g.mu.Lock()
	delete(g.held, group)
	ch, ok := g.waitCh[group]
	if ok {
		delete(g.waitCh, group)
	}
	g.mu.Unlock()

	if ok {
		close(ch)
	}
}
