package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Component is one of the nine ordered startup steps a kvgrid node runs:
// the monitoring sink, the minimal-mode admin endpoint, the
// replica-state listener, the replicated environment, topology
// bootstrap, security startup, the request handler, the login service,
// and the background collectors. Start and Stop may be nil for a step
// that has nothing to do (Stop is always called in reverse order for
// every component whose Start succeeded, regardless).
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// ErrStopRequested is returned by Start when a concurrent Stop call
// aborted the sequence before every component finished starting.
var ErrStopRequested = fmt.Errorf("lifecycle: stop requested during start")

// Supervisor runs an ordered list of Components through a uniform
// start/stop discipline. The first Component is conventionally the
// monitoring sink: Stop always tears it down last, after every other
// started component, so shutdown events are still reportable while the
// rest of the process unwinds.
type Supervisor struct {
	components []Component
	logger     *slog.Logger

	mu      sync.Mutex
	started []int // indices into components, in start order
	done    bool  // terminal: Start has returned (success or failure) or Stop has run

	stopRequested atomic.Bool
}

// NewSupervisor builds a Supervisor over components, run in the given
// order on Start and torn down in reverse on Stop.
func NewSupervisor(logger *slog.Logger, components ...Component) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{components: components, logger: logger}
}

// Start runs every component in order, checking for a concurrent
// RequestStop/Stop call before each one. If a stop was requested, or a
// component's Start fails, every component already started is torn down
// (monitoring sink last) and the triggering error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	for i, c := range s.components {
		if s.stopRequested.Load() {
			s.logger.Warn("lifecycle start aborted: stop requested", "at_step", c.Name)
			s.unwind(ctx)
			return ErrStopRequested
		}

		s.logger.Info("lifecycle starting component", "step", i+1, "name", c.Name)

		if c.Start != nil {
			if err := c.Start(ctx); err != nil {
				s.logger.Error("lifecycle component failed to start", "name", c.Name, "error", err)
				s.unwind(ctx)
				return fmt.Errorf("lifecycle: start %s: %w", c.Name, err)
			}
		}

		s.mu.Lock()
		s.started = append(s.started, i)
		s.mu.Unlock()
	}

	s.logger.Info("lifecycle start complete", "components", len(s.components))
	return nil
}

// RequestStop flips the stop-requested flag a concurrently-running Start
// checks between steps, without itself running any Stop hook. Call Stop
// afterward to actually tear down whatever already started.
func (s *Supervisor) RequestStop() {
	s.stopRequested.Store(true)
}

// Stop tears down every started component in reverse start order, with
// the monitoring sink (component index 0, if started) torn down last
// regardless of where it falls in start order. Idempotent: a second call
// after the first has completed is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopRequested.Store(true)

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	started := append([]int(nil), s.started...)
	s.mu.Unlock()

	s.unwindIndices(ctx, started)
	return nil
}

// unwind tears down every component Start has recorded so far. Used
// internally when Start itself fails or aborts; it does not mark the
// Supervisor done, since a caller that retries Start after a failed
// attempt should be free to.
func (s *Supervisor) unwind(ctx context.Context) {
	s.mu.Lock()
	started := append([]int(nil), s.started...)
	s.started = nil
	s.mu.Unlock()

	s.unwindIndices(ctx, started)
}

// unwindIndices stops components at the given indices in reverse order,
// deferring index 0 (the monitoring sink, by convention) to the very end
// so it can report every other shutdown step first.
func (s *Supervisor) unwindIndices(ctx context.Context, started []int) {
	stopSink := false

	for i := len(started) - 1; i >= 0; i-- {
		idx := started[i]
		if idx == 0 {
			stopSink = true
			continue
		}
		s.stopOne(ctx, idx)
	}

	if stopSink {
		s.stopOne(ctx, 0)
	}
}

func (s *Supervisor) stopOne(ctx context.Context, idx int) {
	c := s.components[idx]
	if c.Stop == nil {
		return
	}
	s.logger.Info("lifecycle stopping component", "name", c.Name)
	if err := c.Stop(ctx); err != nil {
		s.logger.Error("lifecycle component failed to stop", "name", c.Name, "error", err)
	}
}
