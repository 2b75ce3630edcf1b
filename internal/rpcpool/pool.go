package rpcpool

import (
	"sync"
	"time"
)

// Config controls pool behavior.
type Config struct {
	// DialTimeout bounds how long a new connection attempt may take.
	DialTimeout time.Duration
	// MaxIdle is how long an idle connection sits in the pool before the
	// reaper closes it.
	MaxIdle time.Duration
	// ReapInterval is how often the background reaper sweeps for idle
	// connections; defaults to MaxIdle/2 if unset.
	ReapInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 90 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = c.MaxIdle / 2
	}
	return c
}

// Pool is an elastic, per-endpoint pool of Clients: Get dials a new
// connection whenever none are free (no fixed cap), and a background
// reaper closes connections that have sat idle past Config.MaxIdle.
type Pool struct {
	cfg Config

	mu   sync.Mutex
	free map[string][]*Client

	closed   chan struct{}
	closeOne sync.Once
}

// New creates a Pool and starts its idle reaper.
func New(cfg Config) *Pool {
	p := &Pool{
		cfg:    cfg.withDefaults(),
		free:   make(map[string][]*Client),
		closed: make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Get returns a free connection to addr, dialing a new one if the pool
// has none idle.
func (p *Pool) Get(addr string) (*Client, error) {
	p.mu.Lock()
	bucket := p.free[addr]
	if len(bucket) > 0 {
		c := bucket[len(bucket)-1]
		p.free[addr] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	return Dial(addr, p.cfg.DialTimeout)
}

// Put returns c to the pool for reuse. Call this after a successful
// Call; a caller that observed c to be broken should call Discard
// instead.
func (p *Pool) Put(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[c.Endpoint()] = append(p.free[c.Endpoint()], c)
}

// Discard closes c without returning it to the pool, used when a caller
// observes the connection is broken (reset, forwarding loop, protocol
// error).
func (p *Pool) Discard(c *Client) {
	_ = c.Close()
}

// Size returns the number of idle connections currently pooled for addr.
func (p *Pool) Size(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[addr])
}

func (p *Pool) reapLoop() {
	t := time.NewTicker(p.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.reapOnce()
		case <-p.closed:
			return
		}
	}
}

func (p *Pool) reapOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, conns := range p.free {
		kept := conns[:0]
		for _, c := range conns {
			if c.IdleSince() >= p.cfg.MaxIdle {
				_ = c.Close()
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(p.free, addr)
		} else {
			p.free[addr] = kept
		}
	}
}

// Close stops the reaper and closes every pooled connection.
func (p *Pool) Close() error {
	p.closeOne.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, conns := range p.free {
		for _, c := range conns {
			_ = c.Close()
		}
		delete(p.free, addr)
	}
	return nil
}
