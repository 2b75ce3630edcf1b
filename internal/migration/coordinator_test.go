package migration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/wire"
)

// fakeTopology is a minimal TopologyView + TopologyUpdater + Broadcaster
// fake for driving the coordinator's state machine in tests.
type fakeTopology struct {
	mu          sync.Mutex
	topo        *kvdomain.Topology
	groupState  map[kvdomain.GroupID]kvdomain.GroupState
	broadcasts  int
	proposeFail bool
}

func newFakeTopology() *fakeTopology {
	topo := kvdomain.NewTopology(1)
	topo.Partitions[0] = 1
	topo.Groups[1] = []kvdomain.NodeID{{Group: 1, Index: 0}}
	topo.Groups[2] = []kvdomain.NodeID{{Group: 2, Index: 0}}
	topo.Nodes[kvdomain.NodeID{Group: 1, Index: 0}] = kvdomain.Endpoint{Host: "source", Port: 1}
	topo.Nodes[kvdomain.NodeID{Group: 2, Index: 0}] = kvdomain.Endpoint{Host: "target", Port: 1}

	return &fakeTopology{
		topo: topo,
		groupState: map[kvdomain.GroupID]kvdomain.GroupState{
			1: {Group: 1, Master: kvdomain.NodeID{Group: 1, Index: 0}, HasMaster: true},
			2: {Group: 2, Master: kvdomain.NodeID{Group: 2, Index: 0}, HasMaster: true},
		},
	}
}

func (f *fakeTopology) Topology() *kvdomain.Topology {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topo
}

func (f *fakeTopology) GroupState(g kvdomain.GroupID) kvdomain.GroupState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupState[g]
}

func (f *fakeTopology) ProposePartitionAssign(partition kvdomain.PartitionID, group kvdomain.GroupID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proposeFail {
		return context.DeadlineExceeded
	}
	f.topo = f.topo.Clone()
	f.topo.Partitions[partition] = group
	return nil
}

func (f *fakeTopology) Broadcast(ctx context.Context, topo *kvdomain.Topology) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	return nil
}

// fakeTransport scripts a fixed sequence of responses per op.
type fakeTransport struct {
	mu        sync.Mutex
	responses []*wire.MigrationControlResponse
	calls     int
}

func (f *fakeTransport) next() *wire.MigrationControlResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.responses) {
		return f.responses[len(f.responses)-1]
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp
}

func (f *fakeTransport) StartMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, source kvdomain.GroupID) (*wire.MigrationControlResponse, error) {
	return f.next(), nil
}

func (f *fakeTransport) CheckMigration(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error) {
	return f.next(), nil
}

func (f *fakeTransport) Cancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID, target kvdomain.GroupID) (*wire.MigrationControlResponse, error) {
	return &wire.MigrationControlResponse{Status: kvdomain.RemoteSucceeded}, nil
}

func (f *fakeTransport) CanCancel(ctx context.Context, ep kvdomain.Endpoint, partition kvdomain.PartitionID) (*wire.MigrationControlResponse, error) {
	return &wire.MigrationControlResponse{Status: kvdomain.RemoteError}, nil
}

func testConfig() Config {
	return Config{
		RNFailoverDelay:         5 * time.Millisecond,
		CheckMigrationPeriod:    5 * time.Millisecond,
		ServiceUnreachableDelay: 5 * time.Millisecond,
		AdminFailoverDelay:      5 * time.Millisecond,
		CallTimeout:             time.Second,
	}
}

func awaitDone(t *testing.T, c *Coordinator, partition kvdomain.PartitionID) *kvdomain.MigrationRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last *kvdomain.MigrationRecord
	for {
		rec, ok := c.Status(partition)
		if !ok {
			if last == nil {
				t.Fatalf("migration for partition %d finished before any status was observed", partition)
			}
			return last
		}
		last = rec
		select {
		case <-deadline:
			t.Fatalf("migration for partition %d did not finish in time, last state %s", partition, rec.State)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCoordinator_HappyPathSucceeds(t *testing.T) {
	topo := newFakeTopology()
	transport := &fakeTransport{
		responses: []*wire.MigrationControlResponse{
			{Status: kvdomain.RemoteRunning},
			{Status: kvdomain.RemoteSucceeded},
		},
	}

	c := New(testConfig(), transport, topo, topo, topo, nil)

	if _, err := c.Start(context.Background(), kvdomain.PartitionID(0), kvdomain.GroupID(1), kvdomain.GroupID(2), false); err != nil {
		t.Fatal(err)
	}

	awaitDone(t, c, kvdomain.PartitionID(0))

	if topo.broadcasts == 0 {
		t.Error("expected at least one topology broadcast")
	}
	if g, _ := topo.Topology().GroupFor(kvdomain.PartitionID(0)); g != kvdomain.GroupID(2) {
		t.Errorf("expected partition reassigned to group 2, got %d", g)
	}
}

func TestCoordinator_FailedShardSkipsRequestSend(t *testing.T) {
	topo := newFakeTopology()
	transport := &fakeTransport{}

	c := New(testConfig(), transport, topo, topo, topo, nil)

	if _, err := c.Start(context.Background(), kvdomain.PartitionID(0), kvdomain.GroupID(1), kvdomain.GroupID(2), true); err != nil {
		t.Fatal(err)
	}

	awaitDone(t, c, kvdomain.PartitionID(0))

	if transport.calls != 0 {
		t.Errorf("expected no remote calls for a failed-shard migration, got %d", transport.calls)
	}
	if g, _ := topo.Topology().GroupFor(kvdomain.PartitionID(0)); g != kvdomain.GroupID(2) {
		t.Errorf("expected partition reassigned to group 2, got %d", g)
	}
}

func TestCoordinator_RemoteErrorCancelsAndMarksErrored(t *testing.T) {
	topo := newFakeTopology()
	transport := &fakeTransport{
		responses: []*wire.MigrationControlResponse{
			{Status: kvdomain.RemoteError, Cause: kvdomain.ErrMigrationError},
		},
	}

	c := New(testConfig(), transport, topo, topo, topo, nil)

	if _, err := c.Start(context.Background(), kvdomain.PartitionID(0), kvdomain.GroupID(1), kvdomain.GroupID(2), false); err != nil {
		t.Fatal(err)
	}

	rec := awaitDone(t, c, kvdomain.PartitionID(0))
	if rec.State != kvdomain.MigrationErrored {
		t.Errorf("expected ERRORED, got %s", rec.State)
	}
	if g, _ := topo.Topology().GroupFor(kvdomain.PartitionID(0)); g != kvdomain.GroupID(1) {
		t.Errorf("expected partition to remain with group 1 after cancel, got %d", g)
	}
}

func TestCoordinator_IdempotentReplaySkipsBroadcast(t *testing.T) {
	topo := newFakeTopology()
	topo.topo.Partitions[0] = 2 // already reflects the move
	transport := &fakeTransport{
		responses: []*wire.MigrationControlResponse{
			{Status: kvdomain.RemoteSucceeded},
		},
	}

	c := New(testConfig(), transport, topo, topo, topo, nil)

	if _, err := c.Start(context.Background(), kvdomain.PartitionID(0), kvdomain.GroupID(1), kvdomain.GroupID(2), false); err != nil {
		t.Fatal(err)
	}

	awaitDone(t, c, kvdomain.PartitionID(0))

	if topo.broadcasts != 0 {
		t.Errorf("expected broadcast to be skipped for an already-applied topology update, got %d", topo.broadcasts)
	}
}
