package login

import (
	"fmt"
	"io"
	"sync"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/pkg/cmap"
)

// Key identifies a cached handle by the endpoint it talks to.
type Key struct {
	Host string
	Port int
}

func keyFor(ep kvdomain.Endpoint) Key { return Key{Host: ep.Host, Port: ep.Port} }

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Host, k.Port) }

// Handle is a cached connection to a single endpoint: a replication
// node, an admin/clusterstate node, or a storage node. Callers dial once
// per endpoint and reuse the handle for every subsequent request to it.
type Handle interface {
	io.Closer
	// Endpoint is the remote address this handle was dialed for.
	Endpoint() kvdomain.Endpoint
}

// DialFunc constructs a new Handle for ep. It is only invoked once per
// endpoint even under concurrent first-access (see pkg/cmap.Map.LoadOrStore).
type DialFunc func(ep kvdomain.Endpoint) (Handle, error)

// Manager caches Handles by endpoint. One Manager typically exists per
// handle kind (e.g. one for storage-node connections, one for admin
// connections), since each kind has its own DialFunc.
type Manager struct {
	dial DialFunc

	mu      sync.Mutex
	entries *cmap.Map[Key, *entry]
}

type entry struct {
	once sync.Once
	err  error
	h    Handle
}

// NewManager creates a Manager that dials new handles with dial.
func NewManager(dial DialFunc) *Manager {
	return &Manager{
		dial:    dial,
		entries: cmap.New[Key, *entry](),
	}
}

// Get returns the cached handle for ep, dialing a new one if this is the
// first call for that endpoint. Concurrent first-time callers for the
// same endpoint block on the same dial and all observe its result,
// rather than each racing to dial independently.
func (m *Manager) Get(ep kvdomain.Endpoint) (Handle, error) {
	key := keyFor(ep)

	e, _ := m.entries.LoadOrStore(key, func() *entry {
		return &entry{}
	})

	e.once.Do(func() {
		h, err := m.dial(ep)
		e.h, e.err = h, err
	})

	if e.err != nil {
		// A failed dial must not poison the cache permanently: remove
		// the entry so the next Get retries against a fresh endpoint
		// (e.g. after a transient connect failure during a topology
		// change).
		m.entries.Delete(key)
		return nil, e.err
	}
	return e.h, nil
}

// Evict closes and forgets the cached handle for ep, if any. Called when
// a caller observes the handle is broken (connection reset, forwarding
// loop detected downstream) so the next Get dials fresh.
func (m *Manager) Evict(ep kvdomain.Endpoint) error {
	key := keyFor(ep)
	e, ok := m.entries.Get(key)
	if !ok {
		return nil
	}
	m.entries.Delete(key)
	if e.h != nil {
		return e.h.Close()
	}
	return nil
}

// Count returns the number of currently cached handles.
func (m *Manager) Count() int { return m.entries.Count() }

// CloseAll closes every cached handle and clears the cache.
func (m *Manager) CloseAll() error {
	var firstErr error
	m.entries.Range(func(_ Key, e *entry) bool {
		if e.h != nil {
			if err := e.h.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	m.entries.Clear()
	return firstErr
}
